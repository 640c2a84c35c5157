package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/logger"
	pkgerrors "casebridge/pkg/errors"
	"casebridge/pkg/logging"
	"casebridge/pkg/metrics"
	"casebridge/pkg/retry"
	"casebridge/pkg/tracing"
)

const defaultDeadLetterReason = "ProcessingFailed"

type reasoner interface {
	Reason() string
}

// Subscriber pulls peek-locked messages from one queue and settles every
// message exactly once: completed when the handler succeeds, reported and
// dead-lettered otherwise. A message is only received once a handler slot
// is free for it.
type Subscriber struct {
	receiver      Receiver
	handler       Handler
	reporter      ErrorReporter
	queue         string
	concurrency   int
	settleTimeout time.Duration
	renewInterval time.Duration
	policy        retry.Policy
	receivePause  time.Duration
	logger        logger.Logger

	running atomic.Bool
}

func NewSubscriber(receiver Receiver, queue string, handler Handler, reporter ErrorReporter, cfg config.SubscriberConfig, log logger.Logger) *Subscriber {
	concurrency := cfg.MaxConcurrentMessages
	if concurrency <= 0 {
		concurrency = 1
	}
	if seq, ok := receiver.(sequential); ok && seq.Sequential() {
		concurrency = 1
	}

	settleTimeout := cfg.SettleTimeout
	if settleTimeout <= 0 {
		settleTimeout = constants.DefaultSettleTimeout
	}

	renewInterval := cfg.LockRenewalInterval
	if renewInterval <= 0 {
		renewInterval = constants.DefaultLockRenewalInterval
	}

	policy := retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Multiplier:      cfg.Retry.Multiplier,
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	return &Subscriber{
		receiver:      receiver,
		handler:       handler,
		reporter:      reporter,
		queue:         queue,
		concurrency:   concurrency,
		settleTimeout: settleTimeout,
		renewInterval: renewInterval,
		policy:        policy,
		receivePause:  constants.ReceiveErrorPause,
		logger:        log,
	}
}

// Running reports whether the receive loop is active.
func (s *Subscriber) Running() bool {
	return s.running.Load()
}

// Run receives until ctx is cancelled, then waits for in-flight messages to
// be settled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	ctx = logging.WithServiceName(ctx, constants.ServiceName)
	s.logger.InfowCtx(ctx, "Started listening for messages on queue",
		"queue", s.queue,
		"max_concurrent_messages", s.concurrency,
	)

	g := new(errgroup.Group)
	slots := semaphore.NewWeighted(int64(s.concurrency))

	for ctx.Err() == nil {
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		free := 1
		for free < s.concurrency && slots.TryAcquire(1) {
			free++
		}

		msgs, err := s.receiver.Receive(ctx, free)
		if err != nil {
			slots.Release(int64(free))
			if ctx.Err() != nil {
				break
			}
			s.handleReceiveError(ctx, err)
			continue
		}
		if unused := free - len(msgs); unused > 0 {
			slots.Release(int64(unused))
		}

		for _, msg := range msgs {
			g.Go(func() error {
				defer slots.Release(1)
				s.handleMessage(ctx, msg)
				return nil
			})
		}
	}

	_ = g.Wait()
	s.logger.InfowCtx(ctx, "Stopped listening for messages on queue",
		"queue", s.queue,
	)
	return nil
}

func (s *Subscriber) handleReceiveError(ctx context.Context, err error) {
	s.logger.ErrorwCtx(ctx, "Error receiving messages",
		"queue", s.queue,
		"error", err,
	)
	if rerr := s.reporter.ReportError(ctx, fmt.Errorf("receive from %s: %w", s.queue, err)); rerr != nil {
		s.logger.ErrorwCtx(ctx, "Failed to report receive error",
			"queue", s.queue,
			"error", rerr,
		)
	}

	select {
	case <-ctx.Done():
	case <-time.After(s.receivePause):
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, msg *Message) {
	ctx, span := tracing.StartSpanFromMessage(ctx, constants.ServiceName, "queue.process", msg.Properties)
	defer span.End()

	ctx = logging.WithMessageID(ctx, msg.ID)
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}

	metrics.IncMessagesReceived(constants.ServiceName, s.queue)
	s.logger.InfowCtx(ctx, "Message received",
		"queue", s.queue,
		"delivery_count", msg.DeliveryCount,
	)

	stopRenewal := s.renewLock(ctx, msg)
	err := s.process(ctx, msg)
	stopRenewal()

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settleTimeout)
	defer cancel()

	if err == nil {
		if cerr := s.receiver.Complete(settleCtx, msg); cerr != nil {
			metrics.IncSettlementFailure(constants.ServiceName, s.queue, "complete")
			s.logger.ErrorwCtx(ctx, "Failed to complete message",
				"queue", s.queue,
				"error", cerr,
			)
			return
		}
		metrics.IncMessagesCompleted(constants.ServiceName, s.queue)
		s.logger.InfowCtx(ctx, "Message completed", "queue", s.queue)
		return
	}

	span.RecordError(err)
	reason := deadLetterReason(err)

	s.logger.InfowCtx(ctx, "Sending error message to CRM", "reason", reason)
	if rerr := s.reporter.ReportError(settleCtx, err); rerr != nil {
		s.logger.ErrorwCtx(ctx, "Failed to report error to CRM",
			"reason", reason,
			"error", rerr,
		)
	}

	s.logger.InfowCtx(ctx, "Moving message to Dead-letter Queue", "reason", reason)
	if derr := s.receiver.DeadLetter(settleCtx, msg, reason, err.Error()); derr != nil {
		metrics.IncSettlementFailure(constants.ServiceName, s.queue, "dead_letter")
		s.logger.ErrorwCtx(ctx, "Failed to dead-letter message",
			"queue", s.queue,
			"reason", reason,
			"error", derr,
		)
		return
	}
	metrics.IncDeadLettered(constants.ServiceName, s.queue, reason)
}

// renewLock keeps the message lock alive until the returned func is called.
// Shutdown does not stop renewal.
func (s *Subscriber) renewLock(ctx context.Context, msg *Message) (stop func()) {
	renewer, ok := s.receiver.(lockRenewer)
	if !ok {
		return func() {}
	}

	renewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := renewer.RenewLock(renewCtx, msg); err != nil {
					if renewCtx.Err() != nil {
						return
					}
					metrics.IncSettlementFailure(constants.ServiceName, s.queue, "renew_lock")
					s.logger.WarnwCtx(ctx, "Failed to renew message lock",
						"queue", s.queue,
						"error", err,
					)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// process runs the handler with local redelivery. The handler itself is
// not cancelled on shutdown; only the waits between attempts are.
func (s *Subscriber) process(ctx context.Context, msg *Message) error {
	handlerCtx := context.WithoutCancel(ctx)

	var lastErr error
	err := retry.RetryWithCallback(ctx, s.policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = pkgerrors.RecoverPanic(r)
				s.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"queue", s.queue,
					"error", err,
				)
			}
			lastErr = err
		}()
		return s.handler.Handle(handlerCtx, msg.Body)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(constants.ServiceName, s.queue).Inc()
		s.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", s.policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
		)
	})

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) && lastErr != nil {
		return lastErr
	}
	return err
}

func deadLetterReason(err error) string {
	var r reasoner
	if errors.As(err, &r) {
		if reason := r.Reason(); reason != "" {
			return reason
		}
	}
	return defaultDeadLetterReason
}
