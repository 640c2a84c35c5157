package broker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMissingCredentials      = errors.New("missing credentials to connect to broker")
	ErrConnectionFailed        = errors.New("broker connection failed")
	ErrSubscriptionSetupFailed = errors.New("broker subscription setup failed")
)

// Message is one peek-locked delivery. It stays locked until it is
// completed or dead-lettered through the Receiver that returned it.
type Message struct {
	ID            string
	Body          []byte
	DeliveryCount uint32
	EnqueuedAt    time.Time
	Properties    map[string]string

	raw any
}

type Receiver interface {
	// Receive blocks until at least one message is available or ctx is done.
	// It returns at most maxMessages messages.
	Receive(ctx context.Context, maxMessages int) ([]*Message, error)
	Complete(ctx context.Context, msg *Message) error
	DeadLetter(ctx context.Context, msg *Message, reason, description string) error
	Close(ctx context.Context) error
}

// Connection is an established broker client.
type Connection interface {
	Subscribe(ctx context.Context, queue string) (Receiver, error)
	Close(ctx context.Context) error
}

// Connector makes one connection attempt.
type Connector interface {
	Name() string
	Connect(ctx context.Context) (Connection, error)
}

// Handler processes the body of one message. A nil error completes the
// message; anything else dead-letters it.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

type HandlerFunc func(ctx context.Context, body []byte) error

func (f HandlerFunc) Handle(ctx context.Context, body []byte) error {
	return f(ctx, body)
}

// ErrorReporter sends failures to the out-of-band error queue.
type ErrorReporter interface {
	ReportError(ctx context.Context, err error) error
}

// sequential receivers acknowledge cumulatively and must not be handled
// concurrently.
type sequential interface {
	Sequential() bool
}

// lockRenewer receivers hold a time-limited lock on every received message
// that must be extended while the message is being handled.
type lockRenewer interface {
	RenewLock(ctx context.Context, msg *Message) error
}
