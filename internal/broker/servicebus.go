package broker

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/logger"
)

type CredentialKind int

const (
	CredentialConnectionString CredentialKind = iota + 1
	CredentialSharedAccessKey
	CredentialAmbientIdentity
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialConnectionString:
		return "connection_string"
	case CredentialSharedAccessKey:
		return "shared_access_key"
	case CredentialAmbientIdentity:
		return "ambient_identity"
	}
	return "unknown"
}

// Credential is the Service Bus credential chosen from configuration.
type Credential struct {
	Kind             CredentialKind
	ConnectionString string
	Host             string
}

// SelectCredential picks, in order: an explicit connection string, a shared
// access key built from host, username and password, or the ambient identity
// of the host alone.
func SelectCredential(cfg config.ServiceBusConfig) (Credential, error) {
	switch {
	case cfg.ConnectionString != "":
		return Credential{Kind: CredentialConnectionString, ConnectionString: cfg.ConnectionString}, nil
	case cfg.Host != "" && cfg.Username != "" && cfg.Password != "":
		connectionString := fmt.Sprintf("Endpoint=sb://%s/;SharedAccessKeyName=%s;SharedAccessKey=%s",
			cfg.Host, cfg.Username, cfg.Password)
		return Credential{
			Kind:             CredentialSharedAccessKey,
			ConnectionString: connectionString,
			Host:             cfg.Host,
		}, nil
	case cfg.Host != "":
		return Credential{Kind: CredentialAmbientIdentity, Host: cfg.Host}, nil
	}
	return Credential{}, ErrMissingCredentials
}

// ServiceBusDialer builds Service Bus clients. Client construction does not
// open a link, so failures here are configuration or identity errors.
type ServiceBusDialer interface {
	FromConnectionString(connectionString string) (*azservicebus.Client, error)
	FromAmbientIdentity(host string) (*azservicebus.Client, error)
}

type azureDialer struct{}

func (azureDialer) FromConnectionString(connectionString string) (*azservicebus.Client, error) {
	return azservicebus.NewClientFromConnectionString(connectionString, nil)
}

func (azureDialer) FromAmbientIdentity(host string) (*azservicebus.Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default azure credential: %w", err)
	}
	return azservicebus.NewClient(host, cred, nil)
}

type ServiceBusConnector struct {
	cfg    config.ServiceBusConfig
	dialer ServiceBusDialer
	logger logger.Logger
}

func NewServiceBusConnector(cfg config.ServiceBusConfig, log logger.Logger) *ServiceBusConnector {
	return NewServiceBusConnectorWithDialer(cfg, azureDialer{}, log)
}

func NewServiceBusConnectorWithDialer(cfg config.ServiceBusConfig, dialer ServiceBusDialer, log logger.Logger) *ServiceBusConnector {
	return &ServiceBusConnector{cfg: cfg, dialer: dialer, logger: log}
}

func (c *ServiceBusConnector) Name() string {
	return constants.BrokerTypeServiceBus
}

func (c *ServiceBusConnector) Connect(ctx context.Context) (Connection, error) {
	cred, err := SelectCredential(c.cfg)
	if err != nil {
		return nil, err
	}

	c.logger.DebugwCtx(ctx, "Connecting to Azure Service Bus",
		"credential", cred.Kind.String(),
		"host", cred.Host,
	)

	var client *azservicebus.Client
	if cred.Kind == CredentialAmbientIdentity {
		client, err = c.dialer.FromAmbientIdentity(cred.Host)
	} else {
		client, err = c.dialer.FromConnectionString(cred.ConnectionString)
	}
	if err != nil {
		return nil, err
	}

	return &serviceBusConnection{client: client, logger: c.logger}, nil
}

type serviceBusConnection struct {
	client *azservicebus.Client
	logger logger.Logger
}

func (c *serviceBusConnection) Subscribe(ctx context.Context, queue string) (Receiver, error) {
	if queue == "" {
		return nil, fmt.Errorf("%w: queue name is empty", ErrSubscriptionSetupFailed)
	}

	receiver, err := c.client.NewReceiverForQueue(queue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscriptionSetupFailed, err)
	}

	return newServiceBusReceiver(receiver), nil
}

func (c *serviceBusConnection) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// serviceBusLink is the part of *azservicebus.Receiver used here.
type serviceBusLink interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error
	RenewMessageLock(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.RenewMessageLockOptions) error
	Close(ctx context.Context) error
}

type serviceBusReceiver struct {
	link serviceBusLink
}

func newServiceBusReceiver(link serviceBusLink) *serviceBusReceiver {
	return &serviceBusReceiver{link: link}
}

func (r *serviceBusReceiver) Receive(ctx context.Context, maxMessages int) ([]*Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	received, err := r.link.ReceiveMessages(ctx, maxMessages, nil)
	if err != nil {
		return nil, err
	}

	msgs := make([]*Message, 0, len(received))
	for _, m := range received {
		msg := &Message{
			ID:            m.MessageID,
			Body:          m.Body,
			DeliveryCount: m.DeliveryCount,
			Properties:    make(map[string]string, len(m.ApplicationProperties)),
			raw:           m,
		}
		if m.EnqueuedTime != nil {
			msg.EnqueuedAt = *m.EnqueuedTime
		}
		for k, v := range m.ApplicationProperties {
			if s, ok := v.(string); ok {
				msg.Properties[k] = s
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (r *serviceBusReceiver) Complete(ctx context.Context, msg *Message) error {
	m, err := serviceBusMessage(msg)
	if err != nil {
		return err
	}
	return r.link.CompleteMessage(ctx, m, nil)
}

func (r *serviceBusReceiver) DeadLetter(ctx context.Context, msg *Message, reason, description string) error {
	m, err := serviceBusMessage(msg)
	if err != nil {
		return err
	}
	return r.link.DeadLetterMessage(ctx, m, &azservicebus.DeadLetterOptions{
		Reason:           to.Ptr(reason),
		ErrorDescription: to.Ptr(description),
	})
}

func (r *serviceBusReceiver) RenewLock(ctx context.Context, msg *Message) error {
	m, err := serviceBusMessage(msg)
	if err != nil {
		return err
	}
	return r.link.RenewMessageLock(ctx, m, nil)
}

func (r *serviceBusReceiver) Close(ctx context.Context) error {
	return r.link.Close(ctx)
}

func serviceBusMessage(msg *Message) (*azservicebus.ReceivedMessage, error) {
	m, ok := msg.raw.(*azservicebus.ReceivedMessage)
	if !ok {
		return nil, fmt.Errorf("message %s was not received from service bus", msg.ID)
	}
	return m, nil
}
