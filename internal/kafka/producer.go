package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// MessageProducer sends keyed messages to the topic it was registered for.
type MessageProducer[K, V any] interface {
	Send(ctx context.Context, key K, value V, headers ...kgo.RecordHeader) error
	Topic() string
	Close() error
}

// syncProducer is the subset of *kgo.Client a producer needs.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Flush(ctx context.Context) error
	Close()
}

// Producer writes records synchronously through a dedicated client.
type Producer[K, V any] struct {
	topic           string
	client          syncProducer
	keySerializer   Serializer[K]
	valueSerializer Serializer[V]
}

func newProducer[K, V any](reg ProducerRegistration[K, V], topic string, client syncProducer) *Producer[K, V] {
	return &Producer[K, V]{
		topic:           topic,
		client:          client,
		keySerializer:   reg.KeySerializer(),
		valueSerializer: reg.ValueSerializer(),
	}
}

// Topic returns the target topic.
func (p *Producer[K, V]) Topic() string { return p.topic }

// Send serializes key and value and waits for the broker acknowledgement.
func (p *Producer[K, V]) Send(ctx context.Context, key K, value V, headers ...kgo.RecordHeader) error {
	rec := &kgo.Record{Topic: p.topic, Headers: headers}

	if p.keySerializer != nil {
		data, err := p.keySerializer.Serialize(p.topic, key)
		if err != nil {
			return fmt.Errorf("serialize key for topic %q: %w", p.topic, err)
		}
		rec.Key = data
	}

	data, err := p.valueSerializer.Serialize(p.topic, value)
	if err != nil {
		return fmt.Errorf("serialize value for topic %q: %w", p.topic, err)
	}
	rec.Value = data

	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to topic %q: %w", p.topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Producer[K, V]) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("flush producer for topic %q: %w", p.topic, err)
	}
	return nil
}

// discardProducer is handed out while Kafka is disabled.
type discardProducer[K, V any] struct {
	topic string
}

func (p discardProducer[K, V]) Send(_ context.Context, _ K, _ V, _ ...kgo.RecordHeader) error {
	slog.Debug("kafka disabled, discarding message", "topic", p.topic)
	return nil
}

func (p discardProducer[K, V]) Topic() string { return p.topic }

func (p discardProducer[K, V]) Close() error { return nil }
