package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Message is a decoded record handed to a Handler.
type Message[K, V any] struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   map[string][]byte

	Key   K
	Value V

	// RawKey and RawValue are the undecoded bytes.
	RawKey   []byte
	RawValue []byte
}

// Handler processes one message; a non-nil error is passed to the
// registration's ErrorHandler.
type Handler[K, V any] interface {
	Handle(ctx context.Context, msg Message[K, V]) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[K, V any] func(ctx context.Context, msg Message[K, V]) error

func (f HandlerFunc[K, V]) Handle(ctx context.Context, msg Message[K, V]) error { return f(ctx, msg) }

// ErrorHandler decides what happens after a message failed to decode or
// failed in the handler. Returning true commits the message and goes on with
// the next one; false stops the consumer.
type ErrorHandler[K, V any] interface {
	HandleError(ctx context.Context, msg Message[K, V], err error) bool
}

// IgnoreAndProceedErrorHandler logs the failure and continues.
type IgnoreAndProceedErrorHandler[K, V any] struct{}

func (IgnoreAndProceedErrorHandler[K, V]) HandleError(_ context.Context, msg Message[K, V], err error) bool {
	slog.Warn("ignoring failed message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
	return true
}

// StopOnErrorHandler logs the failure and stops the consumer without
// committing the message.
type StopOnErrorHandler[K, V any] struct{}

func (StopOnErrorHandler[K, V]) HandleError(_ context.Context, msg Message[K, V], err error) bool {
	slog.Error("stopping consumer after failed message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
	return false
}

// DeserializationError wraps a key or value decoding failure.
type DeserializationError struct {
	Topic     string
	Partition int32
	Offset    int64
	Part      string // "key" or "value"
	Err       error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s of %s/%d@%d: %v", e.Part, e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }
