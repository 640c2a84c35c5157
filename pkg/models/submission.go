package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SubmissionEvent is the body of a case-details queue message.
type SubmissionEvent struct {
	FRN                string    `json:"frn"`
	CRN                string    `json:"crn"`
	SubmissionID       string    `json:"submissionId"`
	SubmissionDateTime time.Time `json:"submissionDateTime"`
	Type               string    `json:"type"`
	HoldStatus         string    `json:"holdStatus,omitempty"`
	ValidCRNs          []string  `json:"validCrns,omitempty"`
	InvalidCRNs        []string  `json:"invalidCrns,omitempty"`
	BankAccountNumber  string    `json:"bankAccountNumber,omitempty"`
}

// UnmarshalJSON accepts the legacy "SubmissionId" spelling and the
// identifier fields as either JSON strings or numbers.
func (e *SubmissionEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		FRN                json.RawMessage `json:"frn"`
		CRN                json.RawMessage `json:"crn"`
		SubmissionID       json.RawMessage `json:"submissionId"`
		LegacySubmissionID json.RawMessage `json:"SubmissionId"`
		SubmissionDateTime json.RawMessage `json:"submissionDateTime"`
		Type               string          `json:"type"`
		HoldStatus         string          `json:"holdStatus"`
		ValidCRNs          []string        `json:"validCrns"`
		InvalidCRNs        []string        `json:"invalidCrns"`
		BankAccountNumber  json.RawMessage `json:"bankAccountNumber"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	out := SubmissionEvent{
		Type:        raw.Type,
		HoldStatus:  raw.HoldStatus,
		ValidCRNs:   raw.ValidCRNs,
		InvalidCRNs: raw.InvalidCRNs,
	}
	if out.FRN, err = scalarString("frn", raw.FRN); err != nil {
		return err
	}
	if out.CRN, err = scalarString("crn", raw.CRN); err != nil {
		return err
	}
	if out.BankAccountNumber, err = scalarString("bankAccountNumber", raw.BankAccountNumber); err != nil {
		return err
	}
	idField := raw.SubmissionID
	if len(idField) == 0 {
		idField = raw.LegacySubmissionID
	}
	if out.SubmissionID, err = scalarString("submissionId", idField); err != nil {
		return err
	}
	if out.SubmissionDateTime, err = parseTime(raw.SubmissionDateTime); err != nil {
		return err
	}

	*e = out
	return nil
}

// Validate reports the required fields that are missing. The submission
// time is optional; the activity omits it when absent.
func (e SubmissionEvent) Validate() error {
	var missing []string
	if e.FRN == "" {
		missing = append(missing, "frn")
	}
	if e.CRN == "" {
		missing = append(missing, "crn")
	}
	if e.SubmissionID == "" {
		missing = append(missing, "submissionId")
	}
	if e.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

var submissionTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts the timestamp layouts seen on the queue. Timestamps
// without a zone are read as UTC.
func parseTime(raw json.RawMessage) (time.Time, error) {
	value, err := scalarString("submissionDateTime", raw)
	if err != nil || value == "" {
		return time.Time{}, err
	}

	for _, layout := range submissionTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("field submissionDateTime has unsupported format %q", value)
}

func scalarString(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", fmt.Errorf("field %s must be a string or number", field)
}
