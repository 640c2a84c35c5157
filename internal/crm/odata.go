package crm

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// EntityIDHeader carries the URL of a record created by a POST.
const EntityIDHeader = "OData-EntityId"

const (
	organisationSelect = "name,accountid,rpa_sbinumber,rpa_capfirmid"
	organisationFilter = "rpa_capfirmid"
	contactSelect      = "contactid,fullname,rpa_capcustomerid"
	contactFilter      = "rpa_capcustomerid"
	caseSelect         = "incidentid,ticketnumber"

	contactPartyMask = 1
	accountPartyMask = 11
)

var holdStatusField = regexp.MustCompile(`^rpa_holdstatus\d+$`)

// quoteLiteral renders s as an OData string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// queryEscape percent-encodes like encodeURIComponent, with spaces as %20.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func lookupQuery(selectFields, field, value string) string {
	return "$select=" + queryEscape(selectFields) +
		"&$filter=" + queryEscape(field+" eq "+quoteLiteral(value))
}

// ActivityRequest is the input of CreateActivity. Optional fields are only
// written when set.
type ActivityRequest struct {
	CaseID             string
	OrganisationID     string
	ContactID          string
	SubmissionID       string
	SubmissionDateTime time.Time
	Type               string
	HoldStatus         string
	ValidCRNs          []string
	InvalidCRNs        []string
	BankAccountNumber  string
}

type activityParty struct {
	ParticipationTypeMask int    `json:"participationtypemask"`
	Contact               string `json:"partyid_contact@odata.bind,omitempty"`
	Account               string `json:"partyid_account@odata.bind,omitempty"`
}

func title(submissionType, submissionID string) string {
	return fmt.Sprintf("%s (%s)", submissionType, submissionID)
}

func (c *Client) casePayload(organisationID, contactID, submissionID, submissionType string) map[string]interface{} {
	return map[string]interface{}{
		"caseorigincode":                c.cfg.CaseOriginCode,
		"casetypecode":                  c.cfg.CaseTypeCode,
		"customerid_contact@odata.bind": "/contacts(" + contactID + ")",
		"rpa_Contact@odata.bind":        "/contacts(" + contactID + ")",
		"rpa_Organisation@odata.bind":   "/accounts(" + organisationID + ")",
		"rpa_isunknowncontact":          false,
		"rpa_isunknownorganisation":     false,
		"title":                         title(submissionType, submissionID),
	}
}

func (c *Client) activityPayload(req ActivityRequest) map[string]interface{} {
	data := map[string]interface{}{
		"regardingobjectid_incident_rpa_onlinesubmission@odata.bind": "/incidents(" + req.CaseID + ")",
		"rpa_SubmissionType_rpa_onlinesubmission@odata.bind":         "/rpa_documenttypeses(" + c.cfg.DocumentTypeID + ")",
		"rpa_filesinsubmission":                                      c.cfg.FilesInSubmission,
		"rpa_onlinesubmission_activity_parties": []activityParty{
			{ParticipationTypeMask: contactPartyMask, Contact: "/contacts(" + req.ContactID + ")"},
			{ParticipationTypeMask: accountPartyMask, Account: "/accounts(" + req.OrganisationID + ")"},
		},
		"rpa_onlinesubmissionid": req.SubmissionID,
		"subject":                title(req.Type, req.SubmissionID),
	}

	if !req.SubmissionDateTime.IsZero() {
		data["rpa_onlinesubmissiondate"] = req.SubmissionDateTime.UTC().Format(time.RFC3339Nano)
	}
	if holdStatusField.MatchString(req.HoldStatus) {
		data[req.HoldStatus] = true
	}
	if len(req.ValidCRNs) > 0 {
		data["rpa_validcrns"] = strings.Join(req.ValidCRNs, ", ")
	}
	if len(req.InvalidCRNs) > 0 {
		data["rpa_invalidcrns"] = strings.Join(req.InvalidCRNs, ", ")
	}
	if req.BankAccountNumber != "" {
		data["rpa_bankaccountnumber"] = req.BankAccountNumber
	}

	return data
}

func (c *Client) errorPayload(report ErrorReport) (map[string]interface{}, error) {
	message, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error report: %w", err)
	}
	return map[string]interface{}{
		"rpa_name":             report.SubmissionID,
		"rpa_processingentity": c.cfg.ProcessingEntity,
		"rpa_xmlmessage":       string(message),
	}, nil
}

type lookupResult struct {
	Value []map[string]interface{} `json:"value"`
}

// FirstRecordID returns field of the first record in a lookup response, or
// "" when the collection is empty or the field is missing.
func FirstRecordID(resp *Response, field string) (string, error) {
	if resp == nil || len(resp.Body) == 0 {
		return "", nil
	}

	var result lookupResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if len(result.Value) == 0 {
		return "", nil
	}

	id, _ := result.Value[0][field].(string)
	return id, nil
}
