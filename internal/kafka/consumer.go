package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// closeTimeout bounds how long Close waits for marked offsets to commit.
const closeTimeout = 10 * time.Second

// recordClient is the subset of *kgo.Client a consumer needs.
type recordClient interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	Close()
}

// Consumer is one listener instance: a group member polling a single topic
// and feeding records to the registration's handler.
type Consumer[K, V any] struct {
	topic    string
	groupID  string
	instance int
	maxPoll  int

	client            recordClient
	keyDeserializer   Deserializer[K]
	valueDeserializer Deserializer[V]
	handler           Handler[K, V]
	errorHandler      ErrorHandler[K, V]

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	releaseOnce sync.Once
}

func newConsumer[K, V any](reg MessageHandlerRegistration[K, V], topic string, lc ListenerConfig, instance int, client recordClient) *Consumer[K, V] {
	return &Consumer[K, V]{
		topic:             topic,
		groupID:           lc.GroupID,
		instance:          instance,
		maxPoll:           lc.MaxPollRecords,
		client:            client,
		keyDeserializer:   reg.KeyDeserializer(),
		valueDeserializer: reg.ValueDeserializer(),
		handler:           reg.Handler(),
		errorHandler:      reg.ErrorHandler(),
		done:              make(chan struct{}),
	}
}

// Topic returns the consumed topic.
func (c *Consumer[K, V]) Topic() string { return c.topic }

// GroupID returns the consumer group.
func (c *Consumer[K, V]) GroupID() string { return c.groupID }

// Start launches the poll loop. Calling it again is a no-op.
func (c *Consumer[K, V]) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		err := c.run(ctx)
		if err != nil {
			slog.Error("consumer stopped", "topic", c.topic, "group_id", c.groupID, "instance", c.instance, "error", err)
			// Leave the group now so its partitions can be reassigned.
			c.release()
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}()

	slog.Info("consumer started", "topic", c.topic, "group_id", c.groupID, "instance", c.instance)
}

// Done is closed once the poll loop has exited, or by Close when the
// consumer was never started.
func (c *Consumer[K, V]) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the poll loop, if any.
func (c *Consumer[K, V]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops the poll loop, commits marked offsets and closes the client.
func (c *Consumer[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if started {
		cancel()
		<-c.done
	} else {
		close(c.done)
	}

	c.release()
	slog.Debug("consumer closed", "topic", c.topic, "group_id", c.groupID, "instance", c.instance)
	return c.Err()
}

// release commits marked offsets, if the loop ever ran, and closes the
// client. It runs once, from whichever of the stopped loop or Close gets
// there first.
func (c *Consumer[K, V]) release() {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()

		if started {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if err := c.client.CommitMarkedOffsets(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("failed to commit marked offsets", "topic", c.topic, "group_id", c.groupID, "error", err)
			}
			cancel()
		}
		c.client.Close()
	})
}

func (c *Consumer[K, V]) run(ctx context.Context) error {
	for {
		fetches := c.client.PollRecords(ctx, c.maxPoll)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("fetch error", "topic", topic, "partition", partition, "error", err)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			if err := c.process(ctx, iter.Next()); err != nil {
				return err
			}
		}
	}
}

// process decodes and handles one record. A returned error means the error
// handler asked to stop; the record is then left unmarked.
func (c *Consumer[K, V]) process(ctx context.Context, rec *kgo.Record) error {
	msg, err := c.decode(rec)
	if err == nil {
		err = c.handler.Handle(ctx, msg)
	}

	if err != nil && !c.errorHandler.HandleError(ctx, msg, err) {
		return fmt.Errorf("consumer for topic %q stopped at partition %d offset %d: %w",
			rec.Topic, rec.Partition, rec.Offset, err)
	}

	c.client.MarkCommitRecords(rec)
	return nil
}

func (c *Consumer[K, V]) decode(rec *kgo.Record) (Message[K, V], error) {
	msg := Message[K, V]{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Timestamp,
		RawKey:    rec.Key,
		RawValue:  rec.Value,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string][]byte, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers[h.Key] = h.Value
		}
	}

	if c.keyDeserializer != nil && rec.Key != nil {
		key, err := c.keyDeserializer.Deserialize(rec.Topic, rec.Key)
		if err != nil {
			return msg, &DeserializationError{Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset, Part: "key", Err: err}
		}
		msg.Key = key
	}

	value, err := c.valueDeserializer.Deserialize(rec.Topic, rec.Value)
	if err != nil {
		return msg, &DeserializationError{Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset, Part: "value", Err: err}
	}
	msg.Value = value

	return msg, nil
}
