package submission

const (
	entityIDStartOffset = 37
	entityIDEndOffset   = 1
)

// ExtractEntityID takes the GUID out of an entity reference such as
// ".../incidents(a5803822-dbcb-4088-979c-288d088a939f)", i.e. the
// characters from len-37 up to the closing parenthesis. Values too short to
// hold a GUID yield "".
func ExtractEntityID(header string) string {
	if len(header) < entityIDStartOffset {
		return ""
	}
	return header[len(header)-entityIDStartOffset : len(header)-entityIDEndOffset]
}
