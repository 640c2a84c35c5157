package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/logger"
	"casebridge/pkg/metrics"
	"casebridge/pkg/retry"
)

// ConnectionPolicy is a fixed-delay policy bounded by attempt count.
func ConnectionPolicy(cfg config.ConnectionConfig) retry.Policy {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = constants.DefaultConnectionAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = constants.DefaultConnectionRetryDelay
	}
	return retry.FixedPolicy(attempts, delay)
}

// Connect retries connector until it succeeds or the policy is exhausted.
// Missing credentials stop the loop after the first attempt.
func Connect(ctx context.Context, connector Connector, policy retry.Policy, log logger.Logger) (Connection, error) {
	var conn Connection
	attempt := 0

	err := retry.RetryWithCallback(ctx, policy, func() error {
		attempt++
		c, err := connector.Connect(ctx)
		if err != nil {
			metrics.IncConnectionAttempt(connector.Name(), "error")
			log.ErrorwCtx(ctx, "Error connecting to broker",
				"broker", connector.Name(),
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"error", err,
			)
			if errors.Is(err, ErrMissingCredentials) {
				return retry.NewFatalError(err)
			}
			return err
		}

		metrics.IncConnectionAttempt(connector.Name(), "success")
		conn = c
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		log.WarnwCtx(ctx, "Retrying broker connection",
			"broker", connector.Name(),
			"attempt", attempt,
			"next_delay", nextDelay,
		)
	})
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, attempt, err)
	}

	log.InfowCtx(ctx, "Successfully connected to broker",
		"broker", connector.Name(),
		"attempt", attempt,
	)
	return conn, nil
}
