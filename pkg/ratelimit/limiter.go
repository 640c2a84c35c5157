package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"casebridge/internal/config"
)

// Limiter throttles outgoing calls. A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns nil when rate limiting is disabled.
func New(cfg config.RateLimitConfig) *Limiter {
	if !cfg.Enabled {
		return nil
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

// Wait blocks until a call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
