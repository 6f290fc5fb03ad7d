package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"github.com/twmb/franz-go/plugin/kslog"
)

// baseOptions returns the client options shared by admin, consumer and
// producer clients: seeds, authentication, TLS and logging.
func baseOptions(cfg Config) ([]kgo.Opt, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.WithLogger(kslog.New(slog.Default())),
	}
	if cfg.Admin.RequestTimeout > 0 {
		opts = append(opts,
			kgo.RequestTimeoutOverhead(cfg.Admin.RequestTimeout),
			kgo.DialTimeout(cfg.Admin.RequestTimeout),
		)
	}

	// Configure SASL authentication
	if cfg.Security.AuthMechanism != "" {
		saslOpt, err := buildSASL(cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("failed to configure SASL: %w", err)
		}
		opts = append(opts, saslOpt)
	}

	// Configure TLS
	if cfg.Security.TLSEnabled || cfg.Security.TLSCertFile != "" || cfg.Security.TLSCAFile != "" {
		tlsConfig, err := buildTLS(cfg.Security)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		opts = append(opts, kgo.DialTLSConfig(tlsConfig))
	}

	return opts, nil
}

// newAdminClient creates the client used for pings and topic administration.
// franz-go connects lazily, so this never touches the network.
func newAdminClient(cfg Config) (*kgo.Client, error) {
	opts, err := baseOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	return client, nil
}

// consumerOptions extends the base options with group consumption of topic.
func consumerOptions(cfg Config, lc ListenerConfig, topic string) ([]kgo.Opt, error) {
	opts, err := baseOptions(cfg)
	if err != nil {
		return nil, err
	}

	start := kgo.NewOffset().AtStart()
	if lc.StartOffset == "latest" {
		start = kgo.NewOffset().AtEnd()
	}

	opts = append(opts,
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(lc.GroupID),
		kgo.ConsumeResetOffset(start),
		kgo.SessionTimeout(lc.SessionTimeout),
		kgo.FetchMaxWait(lc.FetchMaxWait),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(lc.AutoCommitInterval),
	)
	if lc.ClientID != "" {
		opts = append(opts, kgo.ClientID(lc.ClientID))
	}

	return opts, nil
}

// producerOptions extends the base options with producer tuning; records
// default to topic when none is set on them.
func producerOptions(cfg Config, pc ProducerConfig, topic string) ([]kgo.Opt, error) {
	opts, err := baseOptions(cfg)
	if err != nil {
		return nil, err
	}

	opts = append(opts,
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(resolveAcks(pc.Acks)),
		kgo.ProducerBatchCompression(resolveCompression(pc.Compression)),
	)
	// Idempotent writes require acks from all in-sync replicas.
	if pc.Acks != "all" {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if pc.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(pc.Linger))
	}
	if pc.RecordRetries > 0 {
		opts = append(opts, kgo.RecordRetries(pc.RecordRetries))
	}
	if pc.ClientID != "" {
		opts = append(opts, kgo.ClientID(pc.ClientID))
	}

	return opts, nil
}

func resolveAcks(acks string) kgo.Acks {
	switch acks {
	case "leader":
		return kgo.LeaderAck()
	case "none":
		return kgo.NoAck()
	default:
		return kgo.AllISRAcks()
	}
}

func resolveCompression(name string) kgo.CompressionCodec {
	switch name {
	case "gzip":
		return kgo.GzipCompression()
	case "snappy":
		return kgo.SnappyCompression()
	case "lz4":
		return kgo.Lz4Compression()
	case "zstd":
		return kgo.ZstdCompression()
	default:
		return kgo.NoCompression()
	}
}

// buildSASL creates SASL authentication options based on the mechanism
func buildSASL(cfg SecurityConfig) (kgo.Opt, error) {
	switch strings.ToUpper(cfg.AuthMechanism) {
	case "PLAIN":
		return kgo.SASL(plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism()), nil

	case "SCRAM-SHA-256":
		mechanism := scram.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsSha256Mechanism()
		return kgo.SASL(mechanism), nil

	case "SCRAM-SHA-512":
		mechanism := scram.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsSha512Mechanism()
		return kgo.SASL(mechanism), nil

	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.AuthMechanism)
	}
}

// buildTLS creates TLS configuration from the provided cert files
func buildTLS(cfg SecurityConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.TLSCAFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
