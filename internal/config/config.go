package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig
	Broker         BrokerConfig
	Subscriber     SubscriberConfig
	CRM            CRMConfig
	Logging        LoggingConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type BrokerConfig struct {
	Type       string           `mapstructure:"type"`
	Connection ConnectionConfig `mapstructure:"connection"`
	ServiceBus ServiceBusConfig `mapstructure:"servicebus"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// ConnectionConfig bounds broker connection establishment. Attempts are
// counted, not timed.
type ConnectionConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type ServiceBusConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Host             string `mapstructure:"host"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	Queue            string `mapstructure:"queue"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	GroupID  string   `mapstructure:"group_id"`
	Topic    string   `mapstructure:"topic"`
	DLQTopic string   `mapstructure:"dlq_topic"`
}

type SubscriberConfig struct {
	MaxConcurrentMessages int           `mapstructure:"max_concurrent_messages"`
	SettleTimeout         time.Duration `mapstructure:"settle_timeout"`
	LockRenewalInterval   time.Duration `mapstructure:"lock_renewal_interval"`
	Retry                 RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type CRMConfig struct {
	APIURL            string          `mapstructure:"api_url"`
	APIHost           string          `mapstructure:"api_host"`
	ClientID          string          `mapstructure:"client_id"`
	TenantID          string          `mapstructure:"tenant_id"`
	ClientSecret      string          `mapstructure:"client_secret"`
	AuthorityHost     string          `mapstructure:"authority_host"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	CaseOriginCode    string          `mapstructure:"case_origin_code"`
	CaseTypeCode      string          `mapstructure:"case_type_code"`
	DocumentTypeID    string          `mapstructure:"document_type_id"`
	FilesInSubmission string          `mapstructure:"files_in_submission"`
	ProcessingEntity  string          `mapstructure:"processing_entity"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
}

// AuthorityURL is the tenant authority used for the client-credentials flow.
func (c CRMConfig) AuthorityURL() string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(c.AuthorityHost, "/"), c.TenantID)
}

// Scope is the single .default scope of the CRM API host.
func (c CRMConfig) Scope() string {
	return fmt.Sprintf("https://%s/.default", c.APIHost)
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
