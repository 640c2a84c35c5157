package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebridge/internal/logger"
	"casebridge/pkg/logging"
	"casebridge/pkg/models"
)

type recordingService struct {
	events        []models.SubmissionEvent
	submissionIDs []string
	err           error
}

func (s *recordingService) Process(ctx context.Context, event models.SubmissionEvent) (Result, error) {
	s.events = append(s.events, event)
	s.submissionIDs = append(s.submissionIDs, logging.GetSubmissionID(ctx))
	return Result{}, s.err
}

func TestHandler_Handle(t *testing.T) {
	svc := &recordingService{}
	h := NewHandler(svc, logger.NopLogger())

	err := h.Handle(context.Background(), []byte(`{"frn":"F1","crn":"C1","submissionId":"S1","type":"Update"}`))
	require.NoError(t, err)

	require.Len(t, svc.events, 1)
	assert.Equal(t, testEvent(), svc.events[0])
	assert.Equal(t, []string{"S1"}, svc.submissionIDs)
}

func TestHandler_InvalidMessages(t *testing.T) {
	tests := []struct {
		name             string
		body             string
		wantSubmissionID string
	}{
		{"not json", `<xml/>`, ""},
		{"missing fields", `{"frn":"F1","submissionId":"S9"}`, "S9"},
		{"object identifier", `{"frn":{"id":1},"crn":"C1","submissionId":"S1","type":"Update"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &recordingService{}
			err := NewHandler(svc, logger.NopLogger()).Handle(context.Background(), []byte(tt.body))

			assert.ErrorIs(t, err, ErrInvalidMessage)
			perr := requireProcessingError(t, err)
			assert.Equal(t, StepDecode, perr.Step)
			assert.Equal(t, tt.wantSubmissionID, perr.SubmissionID)
			assert.Equal(t, "InvalidMessage", perr.Reason())
			assert.True(t, perr.IsFatal())
			assert.Empty(t, svc.events)
		})
	}
}

func TestHandler_PropagatesProcessingError(t *testing.T) {
	failure := &ProcessingError{Step: StepResolveOrganisation, SubmissionID: "S1", Err: ErrOrganisationNotFound}
	svc := &recordingService{err: failure}

	err := NewHandler(svc, logger.NopLogger()).Handle(context.Background(),
		[]byte(`{"frn":"F1","crn":"C1","submissionId":"S1","type":"Update"}`))

	assert.True(t, errors.Is(err, ErrOrganisationNotFound))
	assert.Same(t, failure, requireProcessingError(t, err))
}
