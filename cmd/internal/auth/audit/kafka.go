package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// DefaultTopic receives attempt events when no topic is configured.
	DefaultTopic = "accessgate.auth.attempts"

	headerEventType = "event-type"
	headerReason    = "reason"
	eventType       = "auth.attempt"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds one broker round trip.
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes attempt events to a Kafka topic, keyed by phone number
// so every attempt for one number lands on the same partition in order.
type KafkaPublisher struct {
	w   messageWriter
	log *slog.Logger
}

// NewKafkaPublisher builds an async writer for cfg.
// Write errors surface through the completion callback and are logged.
func NewKafkaPublisher(cfg KafkaConfig, log *slog.Logger) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("audit: kafka brokers are required")
	}
	if log == nil {
		log = slog.Default()
	}

	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		AllowAutoTopicCreation: false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("audit.kafka.write.fail", "err", err, "message_count", len(messages), "topic", topic)
			}
		},
	}

	return &KafkaPublisher{w: w, log: log}, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("audit: kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func buildMessage(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("audit: encode event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.PhoneNumber),
		Value: value,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerReason, Value: []byte(ev.Reason)},
		},
	}, nil
}
