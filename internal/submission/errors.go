package submission

import (
	"errors"
	"fmt"
	"strings"

	"casebridge/internal/crm"
)

var (
	ErrInvalidMessage         = errors.New("invalid submission message")
	ErrOrganisationNotFound   = errors.New("could not find organisationId")
	ErrContactNotFound        = errors.New("could not find contactId")
	ErrCaseCreationFailed     = errors.New("could not create case")
	ErrActivityCreationFailed = errors.New("could not create online submission activity")
)

// Step names one state of the orchestration.
type Step string

const (
	StepDecode              Step = "Decode"
	StepResolveOrganisation Step = "ResolveOrganisation"
	StepResolveContact      Step = "ResolveContact"
	StepCreateCase          Step = "CreateCase"
	StepCreateActivity      Step = "CreateActivity"
)

const (
	ReasonProcessingFailed = "ProcessingFailed"
	ReasonTokenAcquisition = "TokenAcquisitionFailed"
)

// ProcessingError aborts one orchestration run. Trail lists every step
// attempted so far with its identifier and status code.
type ProcessingError struct {
	Step         Step
	SubmissionID string
	StatusCode   int
	Trail        []string
	CaseID       string
	Stack        string
	Err          error
}

func (e *ProcessingError) Error() string {
	if e.SubmissionID == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("submission %s: %s: %v", e.SubmissionID, e.Step, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Log is the trail joined one step per line.
func (e *ProcessingError) Log() string {
	return strings.Join(e.Trail, "\n")
}

// Reason is the dead-letter reason code.
func (e *ProcessingError) Reason() string {
	return Reason(e)
}

// IsFatal reports whether redelivering the message locally is pointless or
// unsafe. Only failures before any create call are worth repeating.
func (e *ProcessingError) IsFatal() bool {
	switch {
	case errors.Is(e.Err, ErrInvalidMessage),
		errors.Is(e.Err, ErrOrganisationNotFound),
		errors.Is(e.Err, ErrContactNotFound):
		return true
	case e.Step == StepCreateCase, e.Step == StepCreateActivity:
		return true
	}
	return crm.IsClientError(e.Err)
}

func (e *ProcessingError) ErrorReport() crm.ErrorReport {
	return crm.ErrorReport{
		Message:      e.Error(),
		Stack:        e.Stack,
		SubmissionID: e.SubmissionID,
		StatusCode:   e.StatusCode,
		Log:          e.Log(),
	}
}

// Reason maps err onto the dead-letter reason taxonomy.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return "InvalidMessage"
	case errors.Is(err, ErrOrganisationNotFound):
		return "OrganisationNotFound"
	case errors.Is(err, ErrContactNotFound):
		return "ContactNotFound"
	case errors.Is(err, crm.ErrTokenAcquisitionFailed):
		return ReasonTokenAcquisition
	case errors.Is(err, ErrCaseCreationFailed):
		return "CaseCreationFailed"
	case errors.Is(err, ErrActivityCreationFailed):
		return "ActivityCreationFailed"
	}
	return ReasonProcessingFailed
}
