package crm

import (
	"errors"

	pkgerrors "casebridge/pkg/errors"
)

// ErrorReport is the record serialised into an inbound error queue entry.
type ErrorReport struct {
	Message      string `json:"message"`
	Stack        string `json:"stack,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
	Log          string `json:"log,omitempty"`
}

// Reportable errors describe themselves for the error queue.
type Reportable interface {
	ErrorReport() ErrorReport
}

// NewErrorReport flattens err into an ErrorReport.
func NewErrorReport(err error) ErrorReport {
	var reportable Reportable
	if errors.As(err, &reportable) {
		report := reportable.ErrorReport()
		if report.Message == "" {
			report.Message = err.Error()
		}
		return report
	}

	report := ErrorReport{
		Message:    err.Error(),
		StatusCode: StatusCode(err),
	}

	var panicErr *pkgerrors.PanicError
	if errors.As(err, &panicErr) {
		report.Stack = panicErr.Stack
	}
	return report
}
