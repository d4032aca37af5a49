package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes alerts to a Kafka topic for downstream delivery.
// Messages are keyed by endpoint so a user's alerts stay ordered.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier creates a producer for the given brokers and topic.
func NewKafkaNotifier(brokers []string, topic string, timeout time.Duration) *KafkaNotifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: timeout,
	}
	return &KafkaNotifier{writer: w}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Send(ctx context.Context, endpoint, text string) error {
	msg := newMessage(endpoint, text)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize alert message: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(endpoint),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(msg.Event)},
			{Key: "sent_at", Value: []byte(msg.Timestamp)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish alert to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying producer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
