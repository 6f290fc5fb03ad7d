package kafka

import (
	"strings"
	"sync/atomic"
)

// HandlerRegistrationConfig describes one consumer registration. Topic,
// ValueDeserializer and Handler are required.
type HandlerRegistrationConfig[K, V any] struct {
	// Topic is a key of Config.Topics or a literal topic name.
	Topic string `validate:"required"`

	// ListenerConfig names an entry of Config.ListenerConfigs; empty selects
	// the defaults.
	ListenerConfig string

	// CheckTopicConfiguration verifies partitions and replication factor
	// before any consumer is created.
	CheckTopicConfiguration bool

	// KeyDeserializer is optional; without it Message.Key stays zero.
	KeyDeserializer   Deserializer[K]
	ValueDeserializer Deserializer[V] `validate:"required"`

	Handler Handler[K, V] `validate:"required"`

	// ErrorHandler defaults to IgnoreAndProceedErrorHandler.
	ErrorHandler ErrorHandler[K, V]
}

// MessageHandlerRegistration is an immutable, validated consumer
// registration. A bundle accepts it once.
type MessageHandlerRegistration[K, V any] struct {
	topic             string
	listenerConfig    string
	checkTopic        bool
	keyDeserializer   Deserializer[K]
	valueDeserializer Deserializer[V]
	handler           Handler[K, V]
	errorHandler      ErrorHandler[K, V]
	consumed          *atomic.Bool
}

// NewMessageHandlerRegistration validates cfg without contacting a broker.
func NewMessageHandlerRegistration[K, V any](cfg HandlerRegistrationConfig[K, V]) (MessageHandlerRegistration[K, V], error) {
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if err := validate.Struct(cfg); err != nil {
		return MessageHandlerRegistration[K, V]{}, validationError(cfg.Topic, err)
	}

	errorHandler := cfg.ErrorHandler
	if errorHandler == nil {
		errorHandler = IgnoreAndProceedErrorHandler[K, V]{}
	}

	return MessageHandlerRegistration[K, V]{
		topic:             cfg.Topic,
		listenerConfig:    strings.TrimSpace(cfg.ListenerConfig),
		checkTopic:        cfg.CheckTopicConfiguration,
		keyDeserializer:   cfg.KeyDeserializer,
		valueDeserializer: cfg.ValueDeserializer,
		handler:           cfg.Handler,
		errorHandler:      errorHandler,
		consumed:          new(atomic.Bool),
	}, nil
}

func (r MessageHandlerRegistration[K, V]) Topic() string { return r.topic }
func (r MessageHandlerRegistration[K, V]) ListenerConfig() string { return r.listenerConfig }
func (r MessageHandlerRegistration[K, V]) CheckTopicConfiguration() bool { return r.checkTopic }
func (r MessageHandlerRegistration[K, V]) KeyDeserializer() Deserializer[K] { return r.keyDeserializer }
func (r MessageHandlerRegistration[K, V]) ValueDeserializer() Deserializer[V] { return r.valueDeserializer }
func (r MessageHandlerRegistration[K, V]) Handler() Handler[K, V] { return r.handler }
func (r MessageHandlerRegistration[K, V]) ErrorHandler() ErrorHandler[K, V] { return r.errorHandler }

// claim marks the registration consumed; only the first call succeeds.
func (r MessageHandlerRegistration[K, V]) claim() error {
	if r.consumed == nil {
		return configError("", "registration", "registration was not built with NewMessageHandlerRegistration")
	}
	if !r.consumed.CompareAndSwap(false, true) {
		return configError(r.topic, "registration", "registration was already consumed")
	}
	return nil
}

// ProducerRegistrationConfig describes one producer registration. Topic and
// ValueSerializer are required.
type ProducerRegistrationConfig[K, V any] struct {
	// Topic is a key of Config.Topics or a literal topic name.
	Topic string `validate:"required"`

	// ProducerConfig names an entry of Config.Producers; empty selects the
	// defaults.
	ProducerConfig string

	CreateTopicIfMissing    bool
	CheckTopicConfiguration bool

	// KeySerializer is optional; without it records carry no key.
	KeySerializer   Serializer[K]
	ValueSerializer Serializer[V] `validate:"required"`
}

// ProducerRegistration is an immutable, validated producer registration. A
// bundle accepts it once.
type ProducerRegistration[K, V any] struct {
	topic           string
	producerConfig  string
	createTopic     bool
	checkTopic      bool
	keySerializer   Serializer[K]
	valueSerializer Serializer[V]
	consumed        *atomic.Bool
}

// NewProducerRegistration validates cfg without contacting a broker.
func NewProducerRegistration[K, V any](cfg ProducerRegistrationConfig[K, V]) (ProducerRegistration[K, V], error) {
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if err := validate.Struct(cfg); err != nil {
		return ProducerRegistration[K, V]{}, validationError(cfg.Topic, err)
	}

	return ProducerRegistration[K, V]{
		topic:           cfg.Topic,
		producerConfig:  strings.TrimSpace(cfg.ProducerConfig),
		createTopic:     cfg.CreateTopicIfMissing,
		checkTopic:      cfg.CheckTopicConfiguration,
		keySerializer:   cfg.KeySerializer,
		valueSerializer: cfg.ValueSerializer,
		consumed:        new(atomic.Bool),
	}, nil
}

func (r ProducerRegistration[K, V]) Topic() string { return r.topic }
func (r ProducerRegistration[K, V]) ProducerConfig() string { return r.producerConfig }
func (r ProducerRegistration[K, V]) CreateTopicIfMissing() bool { return r.createTopic }
func (r ProducerRegistration[K, V]) CheckTopicConfiguration() bool { return r.checkTopic }
func (r ProducerRegistration[K, V]) KeySerializer() Serializer[K] { return r.keySerializer }
func (r ProducerRegistration[K, V]) ValueSerializer() Serializer[V] { return r.valueSerializer }

func (r ProducerRegistration[K, V]) claim() error {
	if r.consumed == nil {
		return configError("", "registration", "registration was not built with NewProducerRegistration")
	}
	if !r.consumed.CompareAndSwap(false, true) {
		return configError(r.topic, "registration", "registration was already consumed")
	}
	return nil
}
