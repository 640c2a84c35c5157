package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCRMEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CRM_API_URL", "https://org.crm4.dynamics.com/api/data/v9.2")
	t.Setenv("CRM_API_HOST", "org.crm4.dynamics.com")
	t.Setenv("CRM_CLIENT_ID", "client")
	t.Setenv("CRM_TENANT_ID", "tenant")
	t.Setenv("CRM_CLIENT_SECRET", "secret")
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	setCRMEnv(t)
	t.Setenv("CASE_DETAILS_QUEUE", "case-details")
	t.Setenv("SERVICE_BUS_HOST", "ns.servicebus.windows.net")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "servicebus", cfg.Broker.Type)
	assert.Equal(t, "case-details", cfg.Broker.ServiceBus.Queue)
	assert.Equal(t, "ns.servicebus.windows.net", cfg.Broker.ServiceBus.Host)
	assert.Equal(t, 5, cfg.Broker.Connection.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Broker.Connection.RetryDelay)
	assert.Equal(t, 1, cfg.Subscriber.MaxConcurrentMessages)
	assert.Equal(t, 1, cfg.Subscriber.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.Subscriber.LockRenewalInterval)
	assert.Equal(t, 30*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, 3000, cfg.Server.Port)

	assert.Equal(t, "https://login.microsoftonline.com/tenant", cfg.CRM.AuthorityURL())
	assert.Equal(t, "https://org.crm4.dynamics.com/.default", cfg.CRM.Scope())
}

func TestLoadConfig_FileWithEnvOverride(t *testing.T) {
	setCRMEnv(t)
	t.Setenv("BROKER_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker:
  type: Kafka
  kafka:
    brokers: ["localhost:9092"]
    group_id: submission-service
    topic: submissions
    dlq_topic: submissions-dlq
subscriber:
  max_concurrent_messages: 4
  retry:
    max_attempts: 3
    initial_interval: 2s
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "submissions-dlq", cfg.Broker.Kafka.DLQTopic)
	assert.Equal(t, 4, cfg.Subscriber.MaxConcurrentMessages)
	assert.Equal(t, 3, cfg.Subscriber.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Subscriber.Retry.InitialInterval)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Broker: BrokerConfig{
			Type:       "servicebus",
			Connection: ConnectionConfig{MaxAttempts: 5, RetryDelay: 5 * time.Second},
			ServiceBus: ServiceBusConfig{Queue: "case-details"},
		},
		Subscriber: SubscriberConfig{
			MaxConcurrentMessages: 1,
			SettleTimeout:         30 * time.Second,
			LockRenewalInterval:   20 * time.Second,
			Retry:                 RetryConfig{MaxAttempts: 1, Multiplier: 2},
		},
		CRM: CRMConfig{
			APIURL:       "https://org.crm4.dynamics.com/api/data/v9.2",
			APIHost:      "org.crm4.dynamics.com",
			ClientID:     "client",
			TenantID:     "tenant",
			ClientSecret: "secret",
			Timeout:      30 * time.Second,
		},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantField string
	}{
		{name: "valid", mutate: func(cfg *Config) {}},
		{name: "bad port", mutate: func(cfg *Config) { cfg.Server.Port = 0 }, wantField: "server.port"},
		{name: "no connection attempts", mutate: func(cfg *Config) { cfg.Broker.Connection.MaxAttempts = 0 }, wantField: "broker.connection.max_attempts"},
		{name: "missing queue", mutate: func(cfg *Config) { cfg.Broker.ServiceBus.Queue = "" }, wantField: "broker.servicebus.queue"},
		{name: "unknown broker", mutate: func(cfg *Config) { cfg.Broker.Type = "amqp" }, wantField: "broker.type"},
		{
			name: "kafka dead-letter topic equals input",
			mutate: func(cfg *Config) {
				cfg.Broker.Type = "kafka"
				cfg.Broker.Kafka = KafkaConfig{Brokers: []string{"k:9092"}, GroupID: "g", Topic: "t", DLQTopic: "t"}
			},
			wantField: "broker.kafka.dlq_topic",
		},
		{name: "relative CRM url", mutate: func(cfg *Config) { cfg.CRM.APIURL = "/api/data" }, wantField: "crm.api_url"},
		{name: "missing client secret", mutate: func(cfg *Config) { cfg.CRM.ClientSecret = "" }, wantField: "crm.client_secret"},
		{
			name:      "rate limit without burst",
			mutate:    func(cfg *Config) { cfg.CRM.RateLimit = RateLimitConfig{Enabled: true, RPS: 5} },
			wantField: "crm.rate_limit",
		},
		{name: "zero concurrency", mutate: func(cfg *Config) { cfg.Subscriber.MaxConcurrentMessages = 0 }, wantField: "subscriber.max_concurrent_messages"},
		{name: "no lock renewal", mutate: func(cfg *Config) { cfg.Subscriber.LockRenewalInterval = 0 }, wantField: "subscriber.lock_renewal_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}
