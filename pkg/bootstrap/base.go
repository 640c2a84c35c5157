package bootstrap

import (
	"context"
	"fmt"

	"casebridge/internal/broker"
	"casebridge/internal/config"
	"casebridge/internal/logger"
)

type Base struct {
	Config     *config.Config
	Logger     logger.Logger
	Connection broker.Connection
	Receiver   broker.Receiver

	connect func(ctx context.Context) (broker.Connection, error)
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	b := &Base{
		Config: cfg,
		Logger: log,
	}
	b.connect = b.dial
	return b
}

func (b *Base) dial(ctx context.Context) (broker.Connection, error) {
	connector, err := broker.NewConnector(b.Config.Broker, b.Logger)
	if err != nil {
		return nil, err
	}
	return broker.Connect(ctx, connector, broker.ConnectionPolicy(b.Config.Broker.Connection), b.Logger)
}

// InitBroker establishes the broker connection. Failure here is fatal for
// the service.
func (b *Base) InitBroker(ctx context.Context) error {
	conn, err := b.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	b.Connection = conn
	return nil
}

// Subscribe opens the receiver for the configured queue or topic.
func (b *Base) Subscribe(ctx context.Context) (broker.Receiver, error) {
	if b.Connection == nil {
		return nil, fmt.Errorf("%w: broker is not connected", broker.ErrSubscriptionSetupFailed)
	}

	receiver, err := b.Connection.Subscribe(ctx, broker.QueueName(b.Config.Broker))
	if err != nil {
		return nil, err
	}
	b.Receiver = receiver
	return receiver, nil
}

func (b *Base) ShutdownBroker(ctx context.Context) []error {
	var errs []error

	if b.Receiver != nil {
		if err := b.Receiver.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("receiver close error: %w", err))
		}
	}

	if b.Connection != nil {
		if err := b.Connection.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("connection close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBroker(ctx)...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
