package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClosed is returned by registrations attempted after Close.
var ErrClosed = errors.New("kafka bundle is closed")

type starter interface {
	Start(ctx context.Context)
}

type closer interface {
	Close() error
}

// Bundle turns registrations into running consumers and producers. It owns
// every client it creates and releases them on Close.
type Bundle struct {
	cfg       Config
	admin     *kgo.Client
	registrar *TopicRegistrar

	newConsumerClient func(opts ...kgo.Opt) (recordClient, error)
	newProducerClient func(opts ...kgo.Opt) (syncProducer, error)

	mu       sync.Mutex
	started  bool
	closed   bool
	startCtx context.Context
	starters []starter
	closers  []closer
}

// NewBundle copies cfg, applies defaults and validates it. No connection is
// made until the first registration or check.
func NewBundle(cfg Config) (*Bundle, error) {
	cfg = cfg.Clone()
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, &ConfigurationError{Reason: "apply defaults", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bundle{
		cfg: cfg,
		newConsumerClient: func(opts ...kgo.Opt) (recordClient, error) {
			return kgo.NewClient(opts...)
		},
		newProducerClient: func(opts ...kgo.Opt) (syncProducer, error) {
			return kgo.NewClient(opts...)
		},
	}
	if cfg.Disabled {
		slog.Info("kafka disabled, registrations will not contact a broker")
		return b, nil
	}

	admin, err := newAdminClient(cfg)
	if err != nil {
		return nil, &ConfigurationError{Reason: "build admin client", Err: err}
	}
	b.admin = admin
	b.registrar = NewTopicRegistrar(
		kadm.NewClient(admin),
		NewConnectivityChecker(admin, cfg.Brokers, cfg.Admin.RequestTimeout, cfg.Admin.MaxRetries),
	)

	slog.Debug("kafka bundle created", "brokers", cfg.Brokers, "request_timeout", cfg.Admin.RequestTimeout)
	return b, nil
}

// Config returns the effective configuration after defaults.
func (b *Bundle) Config() Config { return b.cfg.Clone() }

// Disabled reports whether the bundle runs without Kafka.
func (b *Bundle) Disabled() bool { return b.cfg.Disabled }

// RegisterMessageHandler consumes reg and returns one consumer per configured
// instance. All broker checks run before any consumer client is built; on
// failure nothing is left running.
func RegisterMessageHandler[K, V any](ctx context.Context, b *Bundle, reg MessageHandlerRegistration[K, V]) ([]*Consumer[K, V], error) {
	if err := reg.claim(); err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if b.cfg.Disabled {
		slog.Debug("kafka disabled, skipping consumer registration", "topic", reg.Topic())
		return nil, nil
	}

	lc, err := b.cfg.Listener(reg.ListenerConfig())
	if err != nil {
		return nil, err
	}
	spec, err := b.cfg.TopicSpec(reg.Topic())
	if err != nil {
		return nil, err
	}

	if reg.CheckTopicConfiguration() {
		if _, err := b.registrar.EnsureTopicExists(ctx, spec, EnsureOptions{Verify: true}); err != nil {
			return nil, err
		}
	} else if err := b.registrar.CheckConnectivity(ctx); err != nil {
		return nil, err
	}

	opts, err := consumerOptions(b.cfg, lc, spec.Name)
	if err != nil {
		return nil, &ConfigurationError{Topic: spec.Name, Reason: "build consumer client", Err: err}
	}

	consumers := make([]*Consumer[K, V], 0, lc.Instances)
	for i := 0; i < lc.Instances; i++ {
		client, err := b.newConsumerClient(opts...)
		if err != nil {
			for _, c := range consumers {
				_ = c.Close()
			}
			return nil, &ConfigurationError{Topic: spec.Name, Reason: fmt.Sprintf("build consumer client %d", i), Err: err}
		}
		consumers = append(consumers, newConsumer(reg, spec.Name, lc, i, client))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		for _, c := range consumers {
			_ = c.Close()
		}
		return nil, ErrClosed
	}
	for _, c := range consumers {
		b.starters = append(b.starters, c)
		b.closers = append(b.closers, c)
		if b.started {
			c.Start(b.startCtx)
		}
	}

	slog.Info("registered message handler",
		"topic", spec.Name,
		"group_id", lc.GroupID,
		"instances", lc.Instances,
	)
	return consumers, nil
}

// RegisterProducer consumes reg and returns a producer bound to its topic.
// The topic is created or verified first when the registration asks for it.
func RegisterProducer[K, V any](ctx context.Context, b *Bundle, reg ProducerRegistration[K, V]) (MessageProducer[K, V], error) {
	if err := reg.claim(); err != nil {
		return nil, err
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if b.cfg.Disabled {
		slog.Debug("kafka disabled, registering discarding producer", "topic", reg.Topic())
		return discardProducer[K, V]{topic: reg.Topic()}, nil
	}

	pc, err := b.cfg.Producer(reg.ProducerConfig())
	if err != nil {
		return nil, err
	}
	spec, err := b.cfg.TopicSpec(reg.Topic())
	if err != nil {
		return nil, err
	}

	if reg.CreateTopicIfMissing() || reg.CheckTopicConfiguration() {
		opts := EnsureOptions{CreateIfMissing: reg.CreateTopicIfMissing(), Verify: reg.CheckTopicConfiguration()}
		if _, err := b.registrar.EnsureTopicExists(ctx, spec, opts); err != nil {
			return nil, err
		}
	} else if err := b.registrar.CheckConnectivity(ctx); err != nil {
		return nil, err
	}

	opts, err := producerOptions(b.cfg, pc, spec.Name)
	if err != nil {
		return nil, &ConfigurationError{Topic: spec.Name, Reason: "build producer client", Err: err}
	}
	client, err := b.newProducerClient(opts...)
	if err != nil {
		return nil, &ConfigurationError{Topic: spec.Name, Reason: "build producer client", Err: err}
	}
	producer := newProducer(reg, spec.Name, client)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = producer.Close()
		return nil, ErrClosed
	}
	b.closers = append(b.closers, producer)

	slog.Info("registered producer", "topic", spec.Name, "acks", pc.Acks, "compression", pc.Compression)
	return producer, nil
}

// Start launches every registered consumer; consumers registered later start
// right away. ctx bounds the lifetime of the poll loops.
func (b *Bundle) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	b.startCtx = ctx

	for _, s := range b.starters {
		s.Start(ctx)
	}
	slog.Debug("kafka bundle started", "consumers", len(b.starters))
}

// Close stops consumers and producers in reverse registration order and
// closes the admin client. It is safe to call more than once.
func (b *Bundle) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	closers := b.closers
	b.closers = nil
	b.starters = nil
	b.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.admin != nil {
		b.admin.Close()
	}

	slog.Debug("kafka bundle closed", "components", len(closers))
	return errors.Join(errs...)
}

// HealthCheck probes broker connectivity.
func (b *Bundle) HealthCheck(ctx context.Context) error {
	if b.cfg.Disabled {
		return nil
	}
	return b.registrar.CheckConnectivity(ctx)
}

// EnsureTopics runs EnsureTopicExists for every configured topic in name
// order. A connectivity failure aborts the run; configuration failures are
// collected so the report covers every topic.
func (b *Bundle) EnsureTopics(ctx context.Context, opts EnsureOptions) ([]TopicResult, error) {
	if b.cfg.Disabled {
		return nil, nil
	}
	if err := b.registrar.CheckConnectivity(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(b.cfg.Topics))
	for key := range b.cfg.Topics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	results := make([]TopicResult, 0, len(keys))
	var errs []error
	for _, key := range keys {
		spec, err := b.cfg.TopicSpec(key)
		if err != nil {
			results = append(results, TopicResult{Topic: key, Status: TopicStatusFailed, Err: err})
			errs = append(errs, err)
			continue
		}

		result, err := b.registrar.EnsureTopicExists(ctx, spec, opts)
		results = append(results, result)
		if err != nil {
			if errors.Is(err, ErrConnectivity) {
				return results, err
			}
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}

func (b *Bundle) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}
