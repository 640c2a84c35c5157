package constants

import "time"

const (
	BrokerTypeServiceBus = "servicebus"
	BrokerTypeKafka      = "kafka"
)

const (
	DefaultConnectionAttempts   = 5
	DefaultConnectionRetryDelay = 5 * time.Second
	DefaultSettleTimeout        = 30 * time.Second
	DefaultLockRenewalInterval  = 20 * time.Second
	ReceiveErrorPause           = time.Second
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDialTimeout  = 10 * time.Second
)

const (
	DefaultCRMTimeout    = 30 * time.Second
	DefaultAuthorityHost = "https://login.microsoftonline.com"
)

const (
	DefaultServerPort    = 3000
	DefaultServerTimeout = 10 * time.Second
	ShutdownTimeout      = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const ServiceName = "submission-service"
