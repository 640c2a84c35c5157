package submission

import (
	"context"
	"encoding/json"
	"fmt"

	"casebridge/internal/logger"
	"casebridge/pkg/logging"
	"casebridge/pkg/models"
)

// Handler decodes queue message bodies and hands them to the Service.
type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var event models.SubmissionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return &ProcessingError{
			Step: StepDecode,
			Err:  fmt.Errorf("%w: %w", ErrInvalidMessage, err),
		}
	}

	ctx = logging.WithSubmissionID(ctx, event.SubmissionID)

	if err := event.Validate(); err != nil {
		return &ProcessingError{
			Step:         StepDecode,
			SubmissionID: event.SubmissionID,
			Err:          fmt.Errorf("%w: %w", ErrInvalidMessage, err),
		}
	}

	h.logger.InfowCtx(ctx, "Message received",
		"frn", event.FRN,
		"crn", event.CRN,
		"type", event.Type,
	)

	_, err := h.service.Process(ctx, event)
	return err
}
