package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casebridge/internal/config"
	"casebridge/internal/logger"
	"casebridge/pkg/retry"
)

type fakeConnector struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeConnector) Name() string { return "fake" }

func (f *fakeConnector) Connect(ctx context.Context) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.errs) == 0 {
		return &fakeConnection{}, nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	if err == nil {
		return &fakeConnection{}, nil
	}
	return nil, err
}

type fakeConnection struct{}

func (fakeConnection) Subscribe(ctx context.Context, queue string) (Receiver, error) {
	return nil, ErrSubscriptionSetupFailed
}

func (fakeConnection) Close(ctx context.Context) error { return nil }

type fakeDialer struct {
	connectionStrings []string
	hosts             []string
	err               error
}

func (d *fakeDialer) FromConnectionString(connectionString string) (*azservicebus.Client, error) {
	d.connectionStrings = append(d.connectionStrings, connectionString)
	if d.err != nil {
		return nil, d.err
	}
	return &azservicebus.Client{}, nil
}

func (d *fakeDialer) FromAmbientIdentity(host string) (*azservicebus.Client, error) {
	d.hosts = append(d.hosts, host)
	if d.err != nil {
		return nil, d.err
	}
	return &azservicebus.Client{}, nil
}

func testPolicy(attempts int) (retry.Policy, *retry.RecordingTimer) {
	timer := retry.NewRecordingTimer()
	policy := ConnectionPolicy(config.ConnectionConfig{MaxAttempts: attempts, RetryDelay: 5 * time.Second})
	policy.Timer = timer
	return policy, timer
}

func TestConnect_ExhaustsAttemptsWithFixedDelay(t *testing.T) {
	unreachable := errors.New("dial tcp: connection refused")
	connector := &fakeConnector{errs: []error{unreachable, unreachable, unreachable, unreachable, unreachable}}
	policy, timer := testPolicy(5)

	conn, err := Connect(context.Background(), connector, policy, logger.NopLogger())
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorIs(t, err, unreachable)
	assert.Equal(t, 5, connector.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, timer.Delays())
}

func TestConnect_SucceedsAfterRetries(t *testing.T) {
	flaky := errors.New("temporary failure")
	connector := &fakeConnector{errs: []error{flaky, flaky, nil}}
	policy, timer := testPolicy(5)

	conn, err := Connect(context.Background(), connector, policy, logger.NopLogger())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 3, connector.calls)
	assert.Len(t, timer.Delays(), 2)
}

func TestConnect_MissingCredentialsSkipsRetries(t *testing.T) {
	dialer := &fakeDialer{}
	connector := NewServiceBusConnectorWithDialer(config.ServiceBusConfig{Queue: "case-details"}, dialer, logger.NopLogger())
	policy, timer := testPolicy(5)

	_, err := Connect(context.Background(), connector, policy, logger.NopLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	assert.Empty(t, timer.Delays())
	assert.Empty(t, dialer.connectionStrings)
	assert.Empty(t, dialer.hosts)
}

func TestConnect_CancelledContextStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	connector := &fakeConnector{errs: []error{errors.New("refused")}}
	policy, _ := testPolicy(5)

	_, err := Connect(ctx, connector, policy, logger.NopLogger())
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, 1, connector.calls)
}

func TestConnectionPolicy_Defaults(t *testing.T) {
	policy := ConnectionPolicy(config.ConnectionConfig{})
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 5*time.Second, policy.FixedDelay)
}

func TestSelectCredential(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ServiceBusConfig
		want    Credential
		wantErr error
	}{
		{
			name: "connection string wins",
			cfg: config.ServiceBusConfig{
				ConnectionString: "Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=s",
				Host:             "other.servicebus.windows.net",
				Username:         "user",
				Password:         "pass",
			},
			want: Credential{
				Kind:             CredentialConnectionString,
				ConnectionString: "Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=s",
			},
		},
		{
			name: "shared access key from host and user",
			cfg:  config.ServiceBusConfig{Host: "ns.servicebus.windows.net", Username: "RootManageSharedAccessKey", Password: "c2VjcmV0"},
			want: Credential{
				Kind:             CredentialSharedAccessKey,
				ConnectionString: "Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=RootManageSharedAccessKey;SharedAccessKey=c2VjcmV0",
				Host:             "ns.servicebus.windows.net",
			},
		},
		{
			name: "host without password uses ambient identity",
			cfg:  config.ServiceBusConfig{Host: "ns.servicebus.windows.net", Username: "user"},
			want: Credential{Kind: CredentialAmbientIdentity, Host: "ns.servicebus.windows.net"},
		},
		{
			name:    "nothing configured",
			cfg:     config.ServiceBusConfig{Username: "user", Password: "pass"},
			wantErr: ErrMissingCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectCredential(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceBusConnector_UsesSelectedCredential(t *testing.T) {
	t.Run("shared access key", func(t *testing.T) {
		dialer := &fakeDialer{}
		connector := NewServiceBusConnectorWithDialer(config.ServiceBusConfig{
			Host: "ns.servicebus.windows.net", Username: "user", Password: "pass",
		}, dialer, logger.NopLogger())

		conn, err := connector.Connect(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, conn)
		assert.Equal(t, []string{"Endpoint=sb://ns.servicebus.windows.net/;SharedAccessKeyName=user;SharedAccessKey=pass"}, dialer.connectionStrings)
		assert.Empty(t, dialer.hosts)
	})

	t.Run("ambient identity", func(t *testing.T) {
		dialer := &fakeDialer{}
		connector := NewServiceBusConnectorWithDialer(config.ServiceBusConfig{Host: "ns.servicebus.windows.net"}, dialer, logger.NopLogger())

		_, err := connector.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"ns.servicebus.windows.net"}, dialer.hosts)
		assert.Empty(t, dialer.connectionStrings)
	})

	t.Run("dial failure is retryable", func(t *testing.T) {
		dialer := &fakeDialer{err: errors.New("malformed connection string")}
		connector := NewServiceBusConnectorWithDialer(config.ServiceBusConfig{ConnectionString: "garbage"}, dialer, logger.NopLogger())
		policy, timer := testPolicy(3)

		_, err := Connect(context.Background(), connector, policy, logger.NopLogger())
		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.Len(t, dialer.connectionStrings, 3)
		assert.Len(t, timer.Delays(), 2)
	})
}

func TestServiceBusConnection_EmptyQueue(t *testing.T) {
	conn := &serviceBusConnection{client: &azservicebus.Client{}, logger: logger.NopLogger()}
	_, err := conn.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, ErrSubscriptionSetupFailed)
}

func TestKafkaConnector(t *testing.T) {
	t.Run("no brokers", func(t *testing.T) {
		_, err := NewKafkaConnector(config.KafkaConfig{}, logger.NopLogger()).Connect(context.Background())
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("unreachable brokers", func(t *testing.T) {
		connector := NewKafkaConnector(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}}, logger.NopLogger())
		_, err := connector.Connect(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMissingCredentials)
	})
}

func TestNewConnector(t *testing.T) {
	c, err := NewConnector(config.BrokerConfig{Type: "servicebus"}, logger.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, "servicebus", c.Name())

	c, err = NewConnector(config.BrokerConfig{Type: "kafka"}, logger.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, "kafka", c.Name())

	_, err = NewConnector(config.BrokerConfig{Type: "amqp"}, logger.NopLogger())
	assert.Error(t, err)

	assert.Equal(t, "case-details", QueueName(config.BrokerConfig{ServiceBus: config.ServiceBusConfig{Queue: "case-details"}}))
	assert.Equal(t, "submissions", QueueName(config.BrokerConfig{Type: "kafka", Kafka: config.KafkaConfig{Topic: "submissions"}}))
}
