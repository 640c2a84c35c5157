package config

import (
	"fmt"
	"net/url"

	"casebridge/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the shape of the configuration. Missing broker
// credentials are not checked here; the connector reports them.
func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateSubscriber(cfg.Subscriber); err != nil {
		errors = append(errors, err)
	}

	if err := validateCRM(cfg.CRM); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Connection.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "broker.connection.max_attempts",
			Message: "at least one connection attempt is required",
		}
	}

	if cfg.Connection.RetryDelay < 0 {
		return &ValidationError{
			Field:   "broker.connection.retry_delay",
			Message: "retry delay must be non-negative",
		}
	}

	switch cfg.Type {
	case constants.BrokerTypeServiceBus:
		if cfg.ServiceBus.Queue == "" {
			return &ValidationError{
				Field:   "broker.servicebus.queue",
				Message: "queue name is required",
			}
		}
		return nil
	case constants.BrokerTypeKafka:
		return validateKafka(cfg.Kafka)
	case "":
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: servicebus, kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "Kafka topic is required",
		}
	}

	if cfg.DLQTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "a dead-letter topic is required, messages are never dropped",
		}
	}

	if cfg.DLQTopic == cfg.Topic {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "dead-letter topic must differ from the input topic",
		}
	}

	return nil
}

func validateSubscriber(cfg SubscriberConfig) error {
	if cfg.MaxConcurrentMessages < 1 {
		return &ValidationError{
			Field:   "subscriber.max_concurrent_messages",
			Message: "must be at least 1",
		}
	}

	if cfg.SettleTimeout <= 0 {
		return &ValidationError{
			Field:   "subscriber.settle_timeout",
			Message: "settle timeout must be positive",
		}
	}

	if cfg.LockRenewalInterval <= 0 {
		return &ValidationError{
			Field:   "subscriber.lock_renewal_interval",
			Message: "lock renewal interval must be positive",
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "subscriber.retry.max_attempts",
			Message: "max_attempts must be at least 1",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "subscriber.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "subscriber.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "subscriber.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateCRM(cfg CRMConfig) error {
	if cfg.APIURL == "" {
		return &ValidationError{
			Field:   "crm.api_url",
			Message: "CRM API URL is required",
		}
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{
			Field:   "crm.api_url",
			Message: fmt.Sprintf("CRM API URL must be absolute, got %q", cfg.APIURL),
		}
	}

	required := map[string]string{
		"crm.api_host":      cfg.APIHost,
		"crm.client_id":     cfg.ClientID,
		"crm.tenant_id":     cfg.TenantID,
		"crm.client_secret": cfg.ClientSecret,
	}
	for _, field := range []string{"crm.api_host", "crm.client_id", "crm.tenant_id", "crm.client_secret"} {
		if required[field] == "" {
			return &ValidationError{
				Field:   field,
				Message: "value is required for token acquisition",
			}
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "crm.timeout",
			Message: "timeout must be positive",
		}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst < 1) {
		return &ValidationError{
			Field:   "crm.rate_limit",
			Message: "rps must be positive and burst at least 1 when rate limiting is enabled",
		}
	}

	return nil
}
