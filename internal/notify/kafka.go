package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaGateway publishes notification messages to a Kafka topic. The
// downstream delivery workers (email, chat) consume from there; this service
// only guarantees the hand-off.
type KafkaGateway struct {
	client *kgo.Client
	topic  string
}

// NewKafkaGateway connects a producer to the given brokers and topic.
func NewKafkaGateway(brokers []string, topic string) (*KafkaGateway, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaGateway{client: client, topic: topic}, nil
}

// Send publishes the message synchronously so the dispatcher can observe the
// outcome; the dispatcher decides what a failure means (nothing, for callers).
func (g *KafkaGateway) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	record := &kgo.Record{
		Topic: g.topic,
		Key:   []byte(msg.Kind),
		Value: payload,
	}
	if err := g.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (g *KafkaGateway) Close() {
	g.client.Close()
}
