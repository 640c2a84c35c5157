package broker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/logger"
	"casebridge/pkg/tracing"
)

const (
	dlqReasonHeader      = "dlq_reason"
	dlqDescriptionHeader = "dlq_description"
	dlqSourceTopicHeader = "dlq_source_topic"
)

type KafkaConnector struct {
	cfg    config.KafkaConfig
	dial   func(ctx context.Context, network, address string) (*kafka.Conn, error)
	logger logger.Logger
}

func NewKafkaConnector(cfg config.KafkaConfig, log logger.Logger) *KafkaConnector {
	return &KafkaConnector{cfg: cfg, dial: kafka.DialContext, logger: log}
}

func (c *KafkaConnector) Name() string {
	return constants.BrokerTypeKafka
}

// Connect succeeds once any configured broker accepts a connection.
func (c *KafkaConnector) Connect(ctx context.Context) (Connection, error) {
	if len(c.cfg.Brokers) == 0 {
		return nil, ErrMissingCredentials
	}

	var lastErr error
	for _, addr := range c.cfg.Brokers {
		dialCtx, cancel := context.WithTimeout(ctx, constants.KafkaDialTimeout)
		conn, err := c.dial(dialCtx, "tcp", addr)
		cancel()
		if err != nil {
			c.logger.DebugwCtx(ctx, "Kafka broker unreachable",
				"broker", addr,
				"error", err,
			)
			lastErr = err
			continue
		}
		_ = conn.Close()
		return &kafkaConnection{cfg: c.cfg, logger: c.logger}, nil
	}

	return nil, fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

type kafkaConnection struct {
	cfg    config.KafkaConfig
	logger logger.Logger
}

func (c *kafkaConnection) Subscribe(ctx context.Context, topic string) (Receiver, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is empty", ErrSubscriptionSetupFailed)
	}
	if c.cfg.DLQTopic == "" || c.cfg.DLQTopic == topic {
		return nil, fmt.Errorf("%w: dead-letter topic must be set and differ from %s", ErrSubscriptionSetupFailed, topic)
	}

	c.logger.InfowCtx(ctx, "Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"dlq_topic", c.cfg.DLQTopic,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	writer := &kafka.Writer{
		Addr:         kafka.TCP(c.cfg.Brokers...),
		Topic:        c.cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return newKafkaReceiver(reader, writer, topic), nil
}

func (c *kafkaConnection) Close(ctx context.Context) error {
	return nil
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaReceiver maps the peek-lock contract onto a consumer group: a
// fetched record is locked until its offset is committed. Commits are
// cumulative per partition, so records are handled one at a time.
type kafkaReceiver struct {
	reader kafkaReader
	writer kafkaWriter
	topic  string
}

func newKafkaReceiver(reader kafkaReader, writer kafkaWriter, topic string) *kafkaReceiver {
	return &kafkaReceiver{reader: reader, writer: writer, topic: topic}
}

func (r *kafkaReceiver) Sequential() bool {
	return true
}

func (r *kafkaReceiver) Receive(ctx context.Context, maxMessages int) ([]*Message, error) {
	m, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	id := string(m.Key)
	if id == "" {
		id = m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
	}

	return []*Message{{
		ID:            id,
		Body:          m.Value,
		DeliveryCount: 1,
		EnqueuedAt:    m.Time,
		Properties:    tracing.HeadersToProperties(m.Headers),
		raw:           m,
	}}, nil
}

func (r *kafkaReceiver) Complete(ctx context.Context, msg *Message) error {
	m, err := kafkaMessage(msg)
	if err != nil {
		return err
	}
	return r.reader.CommitMessages(ctx, m)
}

// DeadLetter copies the record to the dead-letter topic and commits it.
// The commit is skipped when the copy fails, so the record is redelivered
// rather than lost.
func (r *kafkaReceiver) DeadLetter(ctx context.Context, msg *Message, reason, description string) error {
	m, err := kafkaMessage(msg)
	if err != nil {
		return err
	}

	headers := make([]kafka.Header, 0, len(m.Headers)+3)
	headers = append(headers, m.Headers...)
	headers = append(headers,
		kafka.Header{Key: dlqReasonHeader, Value: []byte(reason)},
		kafka.Header{Key: dlqDescriptionHeader, Value: []byte(description)},
		kafka.Header{Key: dlqSourceTopicHeader, Value: []byte(r.topic)},
	)
	headers = tracing.InjectTraceContext(ctx, headers)

	if err := r.writer.WriteMessages(ctx, kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    m.Time,
	}); err != nil {
		return fmt.Errorf("failed to write to dead-letter topic: %w", err)
	}

	return r.reader.CommitMessages(ctx, m)
}

func (r *kafkaReceiver) Close(ctx context.Context) error {
	err := r.reader.Close()
	if werr := r.writer.Close(); werr != nil && err == nil {
		err = werr
	}
	return err
}

func kafkaMessage(msg *Message) (kafka.Message, error) {
	m, ok := msg.raw.(kafka.Message)
	if !ok {
		return kafka.Message{}, fmt.Errorf("message %s was not received from kafka", msg.ID)
	}
	return m, nil
}
