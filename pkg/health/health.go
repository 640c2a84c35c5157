package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ErrDegraded marks a check failure that should not fail readiness.
var ErrDegraded = errors.New("degraded")

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	allHealthy := true
	anyDegraded := false

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		switch {
		case err == nil:
			result.Status = StatusHealthy
		case errors.Is(err, ErrDegraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// Runner is anything with a receive loop that can be observed.
type Runner interface {
	Running() bool
}

// SubscriberChecker is unhealthy while the subscriber is absent or stopped.
type SubscriberChecker struct {
	subscriber Runner
}

func NewSubscriberChecker(subscriber Runner) *SubscriberChecker {
	return &SubscriberChecker{subscriber: subscriber}
}

func (c *SubscriberChecker) Name() string {
	return "subscriber"
}

func (c *SubscriberChecker) Check(ctx context.Context) error {
	if c.subscriber == nil {
		return fmt.Errorf("no queue subscription")
	}
	if !c.subscriber.Running() {
		return fmt.Errorf("subscriber is not receiving")
	}
	return nil
}

type Breaker interface {
	Name() string
	IsOpen() bool
}

// BreakerChecker reports an open circuit as degraded.
type BreakerChecker struct {
	breaker Breaker
}

func NewBreakerChecker(breaker Breaker) *BreakerChecker {
	return &BreakerChecker{breaker: breaker}
}

func (c *BreakerChecker) Name() string {
	return "circuit_breaker_" + c.breaker.Name()
}

func (c *BreakerChecker) Check(ctx context.Context) error {
	if c.breaker.IsOpen() {
		return fmt.Errorf("%w: circuit %s is open", ErrDegraded, c.breaker.Name())
	}
	return nil
}
