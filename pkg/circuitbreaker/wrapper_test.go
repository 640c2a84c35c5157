package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebridge/internal/config"
)

func TestExecute_NilWrapperRunsDirectly(t *testing.T) {
	got, err := Execute(context.Background(), nil, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestExecute_OpensAfterFailures(t *testing.T) {
	w := NewWrapper(FromSettings("crm-test-open", config.CircuitBreakerConfig{
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}))

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), w, func() (string, error) {
			return "", boom
		})
		assert.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())

	calls := 0
	_, err := Execute(context.Background(), w, func() (string, error) {
		calls++
		return "ok", nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Zero(t, calls)
}

func TestExecute_IsSuccessfulKeepsBreakerClosed(t *testing.T) {
	cfg := FromSettings("crm-test-success", config.CircuitBreakerConfig{FailureRatio: 0.1, MinRequests: 1})
	ignored := errors.New("client error")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ignored)
	}
	w := NewWrapper(cfg)

	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), w, func() (int, error) {
			return 0, ignored
		})
		assert.ErrorIs(t, err, ignored)
	}

	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, nil, func() (int, error) {
		t.Fatal("must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
