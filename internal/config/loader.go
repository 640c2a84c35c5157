package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"casebridge/internal/constants"
)

// LoadConfig reads configuration from the environment and, when configFile is
// not empty, from a YAML file. Environment variables win over the file.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", constants.DefaultServerPort)
	viper.SetDefault("server.read_timeout_seconds", constants.DefaultServerTimeout)
	viper.SetDefault("server.write_timeout_seconds", constants.DefaultServerTimeout)

	viper.SetDefault("broker.type", constants.BrokerTypeServiceBus)
	viper.SetDefault("broker.connection.max_attempts", constants.DefaultConnectionAttempts)
	viper.SetDefault("broker.connection.retry_delay", constants.DefaultConnectionRetryDelay)

	viper.SetDefault("subscriber.max_concurrent_messages", 1)
	viper.SetDefault("subscriber.settle_timeout", constants.DefaultSettleTimeout)
	viper.SetDefault("subscriber.lock_renewal_interval", constants.DefaultLockRenewalInterval)
	viper.SetDefault("subscriber.retry.max_attempts", 1)
	viper.SetDefault("subscriber.retry.initial_interval", "1s")
	viper.SetDefault("subscriber.retry.max_interval", "30s")
	viper.SetDefault("subscriber.retry.multiplier", 2.0)

	viper.SetDefault("crm.authority_host", constants.DefaultAuthorityHost)
	viper.SetDefault("crm.timeout", constants.DefaultCRMTimeout)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "PORT")

	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.connection.max_attempts", "BROKER_CONNECTION_MAX_ATTEMPTS")
	viper.BindEnv("broker.connection.retry_delay", "BROKER_CONNECTION_RETRY_DELAY")

	viper.BindEnv("broker.servicebus.connection_string", "SERVICE_BUS_CONNECTION_STRING")
	viper.BindEnv("broker.servicebus.host", "SERVICE_BUS_HOST")
	viper.BindEnv("broker.servicebus.username", "SERVICE_BUS_USERNAME")
	viper.BindEnv("broker.servicebus.password", "SERVICE_BUS_PASSWORD")
	viper.BindEnv("broker.servicebus.queue", "CASE_DETAILS_QUEUE")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("subscriber.max_concurrent_messages", "SUBSCRIBER_MAX_CONCURRENT_MESSAGES")
	viper.BindEnv("subscriber.retry.max_attempts", "SUBSCRIBER_RETRY_MAX_ATTEMPTS")
	viper.BindEnv("subscriber.lock_renewal_interval", "SUBSCRIBER_LOCK_RENEWAL_INTERVAL")

	viper.BindEnv("crm.api_url", "CRM_API_URL")
	viper.BindEnv("crm.api_host", "CRM_API_HOST")
	viper.BindEnv("crm.client_id", "CRM_CLIENT_ID")
	viper.BindEnv("crm.tenant_id", "CRM_TENANT_ID")
	viper.BindEnv("crm.client_secret", "CRM_CLIENT_SECRET")
	viper.BindEnv("crm.case_origin_code", "CASE_ORIGIN_CODE")
	viper.BindEnv("crm.case_type_code", "CASE_TYPE_CODE")
	viper.BindEnv("crm.document_type_id", "RPA_DOCUMENT_TYPES_ES")
	viper.BindEnv("crm.files_in_submission", "RPA_FILES_IN_SUBMISSION")
	viper.BindEnv("crm.processing_entity", "RPA_PROCESSING_ENTITY")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	cfg.Broker.Type = strings.ToLower(strings.TrimSpace(cfg.Broker.Type))

	return nil
}
