package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRunner struct {
	running bool
}

func (r fakeRunner) Running() bool { return r.running }

type fakeBreaker struct {
	open bool
}

func (b fakeBreaker) Name() string { return "crm" }
func (b fakeBreaker) IsOpen() bool { return b.open }

func TestCheckerRegistry_Check(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus Status
	}{
		{
			name:       "no checkers",
			wantStatus: StatusHealthy,
		},
		{
			name:       "subscriber running",
			checkers:   []Checker{NewSubscriberChecker(fakeRunner{running: true})},
			wantStatus: StatusHealthy,
		},
		{
			name:       "subscriber stopped",
			checkers:   []Checker{NewSubscriberChecker(fakeRunner{})},
			wantStatus: StatusUnhealthy,
		},
		{
			name:       "subscriber absent",
			checkers:   []Checker{NewSubscriberChecker(nil)},
			wantStatus: StatusUnhealthy,
		},
		{
			name: "open breaker degrades",
			checkers: []Checker{
				NewSubscriberChecker(fakeRunner{running: true}),
				NewBreakerChecker(fakeBreaker{open: true}),
			},
			wantStatus: StatusDegraded,
		},
		{
			name: "unhealthy wins over degraded",
			checkers: []Checker{
				NewSubscriberChecker(fakeRunner{}),
				NewBreakerChecker(fakeBreaker{open: true}),
			},
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewCheckerRegistry()
			for _, c := range tt.checkers {
				registry.Register(c)
			}

			h := registry.Check(context.Background())
			assert.Equal(t, tt.wantStatus, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestBreakerChecker_Message(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(NewBreakerChecker(fakeBreaker{open: true}))

	h := registry.Check(context.Background())
	result := h.Checks["circuit_breaker_crm"]
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "circuit crm is open")
}
