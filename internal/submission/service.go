package submission

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"casebridge/internal/crm"
	"casebridge/internal/logger"
	"casebridge/pkg/metrics"
	"casebridge/pkg/models"
	"casebridge/pkg/tracing"
)

const tracerName = "submission-service"

// CRM is the subset of the CRM client the orchestration drives.
type CRM interface {
	LookupOrganisation(ctx context.Context, frn string) (*crm.Response, error)
	LookupContact(ctx context.Context, crn string) (*crm.Response, error)
	CreateCase(ctx context.Context, organisationID, contactID, submissionID, submissionType string) (*crm.Response, error)
	CreateActivity(ctx context.Context, req crm.ActivityRequest) (*crm.Response, error)
}

// Result holds the identifiers resolved and created for one submission.
type Result struct {
	OrganisationID string
	ContactID      string
	CaseID         string
	ActivityID     string
	Trail          []string
}

type Service interface {
	// Process turns one submission into a case and an activity. It stops at
	// the first step that does not yield an identifier and returns a
	// *ProcessingError.
	Process(ctx context.Context, event models.SubmissionEvent) (Result, error)
}

type serviceImpl struct {
	crm    CRM
	logger logger.Logger
}

func NewService(client CRM, log logger.Logger) Service {
	return &serviceImpl{
		crm:    client,
		logger: log,
	}
}

// run is the state of one orchestration. It is never shared between
// messages.
type run struct {
	event      models.SubmissionEvent
	result     Result
	statusCode int
}

func (s *serviceImpl) Process(ctx context.Context, event models.SubmissionEvent) (Result, error) {
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "submission.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", event.SubmissionID),
		attribute.String("submission.type", event.Type),
	)

	start := time.Now()
	r := &run{event: event}

	err := s.execute(ctx, r)
	if err != nil {
		metrics.ObserveSubmission(time.Since(start), Reason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, Reason(err))
		s.logger.ErrorwCtx(ctx, "Could not process message to CRM",
			"reason", Reason(err),
			"status_code", r.statusCode,
			"log", r.result.Trail,
			"error", err,
		)
		return r.result, err
	}

	metrics.ObserveSubmission(time.Since(start), "completed")
	s.logger.InfowCtx(ctx, "Message processed to CRM",
		"organisation_id", r.result.OrganisationID,
		"contact_id", r.result.ContactID,
		"case_id", r.result.CaseID,
		"activity_id", r.result.ActivityID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return r.result, nil
}

func (s *serviceImpl) execute(ctx context.Context, r *run) error {
	organisation, err := s.call(ctx, r, StepResolveOrganisation, func(ctx context.Context) (*crm.Response, error) {
		return s.crm.LookupOrganisation(ctx, r.event.FRN)
	})
	if err != nil {
		r.record("Organisation ID", "")
		return r.abort(StepResolveOrganisation, err)
	}
	r.result.OrganisationID, err = crm.FirstRecordID(organisation, "accountid")
	r.record("Organisation ID", r.result.OrganisationID)
	if err != nil {
		return r.abort(StepResolveOrganisation, err)
	}
	if r.result.OrganisationID == "" {
		return r.abort(StepResolveOrganisation, fmt.Errorf("%w for frn %s", ErrOrganisationNotFound, r.event.FRN))
	}

	contact, err := s.call(ctx, r, StepResolveContact, func(ctx context.Context) (*crm.Response, error) {
		return s.crm.LookupContact(ctx, r.event.CRN)
	})
	if err != nil {
		r.record("Contact ID", "")
		return r.abort(StepResolveContact, err)
	}
	r.result.ContactID, err = crm.FirstRecordID(contact, "contactid")
	r.record("Contact ID", r.result.ContactID)
	if err != nil {
		return r.abort(StepResolveContact, err)
	}
	if r.result.ContactID == "" {
		return r.abort(StepResolveContact, fmt.Errorf("%w for crn %s", ErrContactNotFound, r.event.CRN))
	}

	crmCase, err := s.call(ctx, r, StepCreateCase, func(ctx context.Context) (*crm.Response, error) {
		return s.crm.CreateCase(ctx, r.result.OrganisationID, r.result.ContactID, r.event.SubmissionID, r.event.Type)
	})
	if err != nil {
		r.record("Case ID", "")
		return r.abort(StepCreateCase, fmt.Errorf("%w: %w", ErrCaseCreationFailed, err))
	}
	r.result.CaseID = ExtractEntityID(crmCase.EntityID())
	r.record("Case ID", r.result.CaseID)
	if r.result.CaseID == "" {
		return r.abort(StepCreateCase, fmt.Errorf("%w: response has no %s header", ErrCaseCreationFailed, crm.EntityIDHeader))
	}

	activity, err := s.call(ctx, r, StepCreateActivity, func(ctx context.Context) (*crm.Response, error) {
		return s.crm.CreateActivity(ctx, crm.ActivityRequest{
			CaseID:             r.result.CaseID,
			OrganisationID:     r.result.OrganisationID,
			ContactID:          r.result.ContactID,
			SubmissionID:       r.event.SubmissionID,
			SubmissionDateTime: r.event.SubmissionDateTime,
			Type:               r.event.Type,
			HoldStatus:         r.event.HoldStatus,
			ValidCRNs:          r.event.ValidCRNs,
			InvalidCRNs:        r.event.InvalidCRNs,
			BankAccountNumber:  r.event.BankAccountNumber,
		})
	})
	if err != nil {
		r.record("Online Submission Activity ID", "")
		return r.abort(StepCreateActivity, fmt.Errorf("%w: %w", ErrActivityCreationFailed, err))
	}
	r.result.ActivityID = ExtractEntityID(activity.EntityID())
	r.record("Online Submission Activity ID", r.result.ActivityID)
	if r.result.ActivityID == "" {
		return r.abort(StepCreateActivity, fmt.Errorf("%w: response has no %s header", ErrActivityCreationFailed, crm.EntityIDHeader))
	}

	return nil
}

// call runs one CRM step in its own span and remembers its status code.
func (s *serviceImpl) call(ctx context.Context, r *run, step Step, fn func(ctx context.Context) (*crm.Response, error)) (*crm.Response, error) {
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "submission."+string(step))
	defer span.End()

	resp, err := fn(ctx)
	r.statusCode = 0
	if resp != nil {
		r.statusCode = resp.StatusCode
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.logger.DebugwCtx(ctx, "CRM step finished",
		"step", step,
		"status_code", r.statusCode,
		"error", err,
	)
	return resp, err
}

func (r *run) record(label, id string) {
	if id == "" {
		id = "none"
	}
	code := "none"
	if r.statusCode != 0 {
		code = strconv.Itoa(r.statusCode)
	}
	r.result.Trail = append(r.result.Trail, fmt.Sprintf("%s: %s - Status Code: %s", label, id, code))
}

func (r *run) abort(step Step, err error) error {
	trail := make([]string, len(r.result.Trail))
	copy(trail, r.result.Trail)

	return &ProcessingError{
		Step:         step,
		SubmissionID: r.event.SubmissionID,
		StatusCode:   r.statusCode,
		Trail:        trail,
		CaseID:       r.result.CaseID,
		Stack:        string(debug.Stack()),
		Err:          err,
	}
}
