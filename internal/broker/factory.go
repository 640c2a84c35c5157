package broker

import (
	"fmt"

	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/logger"
)

func NewConnector(cfg config.BrokerConfig, log logger.Logger) (Connector, error) {
	switch cfg.Type {
	case constants.BrokerTypeServiceBus, "":
		return NewServiceBusConnector(cfg.ServiceBus, log), nil
	case constants.BrokerTypeKafka:
		return NewKafkaConnector(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// QueueName is the queue or topic the subscriber listens on.
func QueueName(cfg config.BrokerConfig) string {
	if cfg.Type == constants.BrokerTypeKafka {
		return cfg.Kafka.Topic
	}
	return cfg.ServiceBus.Queue
}
