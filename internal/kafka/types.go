package kafka

import (
	"time"
)

// DefaultGroupID is used by listeners that do not name a consumer group.
const DefaultGroupID = "default"

// Config holds the configuration for connecting to Kafka and the named
// topic, listener and producer bundles registrations refer to.
type Config struct {
	// Disabled turns every registration into a no-op that never contacts a broker.
	Disabled bool `mapstructure:"disabled"`

	Brokers  []string       `mapstructure:"brokers" validate:"required_if=Disabled false,dive,broker"`
	Security SecurityConfig `mapstructure:"security"`
	Admin    AdminConfig    `mapstructure:"admin"`

	Topics          map[string]TopicConfig    `mapstructure:"topics" validate:"dive"`
	ListenerConfigs map[string]ListenerConfig `mapstructure:"listener_configs" validate:"dive"`
	Producers       map[string]ProducerConfig `mapstructure:"producers" validate:"dive"`
}

// SecurityConfig holds SASL and TLS settings shared by every client.
type SecurityConfig struct {
	AuthMechanism string `mapstructure:"auth_mechanism" validate:"omitempty,oneof=PLAIN SCRAM-SHA-256 SCRAM-SHA-512"`
	Username      string `mapstructure:"username" validate:"required_with=AuthMechanism"`
	Password      string `mapstructure:"password" validate:"required_with=AuthMechanism"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"` // Enable TLS without client certificates
	TLSCertFile   string `mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile    string `mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
	TLSCAFile     string `mapstructure:"tls_ca_file"`
}

// AdminConfig bounds connectivity probes and topic administration.
type AdminConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"5s" validate:"gt=0"`
	// MaxRetries is the number of extra ping attempts on transient errors.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
}

// TopicConfig is the desired shape of a topic.
type TopicConfig struct {
	// Name overrides the map key as the topic name on the cluster.
	Name              string            `mapstructure:"name"`
	Partitions        int32             `mapstructure:"partitions" default:"1" validate:"gte=1"`
	ReplicationFactor int16             `mapstructure:"replication_factor" default:"1" validate:"gte=1"`
	Configs           map[string]string `mapstructure:"configs"`
}

// ListenerConfig is a named bundle of consumer tuning parameters.
type ListenerConfig struct {
	GroupID            string        `mapstructure:"group_id" default:"default"`
	ClientID           string        `mapstructure:"client_id"`
	Instances          int           `mapstructure:"instances" default:"1" validate:"gte=1,lte=64"`
	MaxPollRecords     int           `mapstructure:"max_poll_records" default:"500" validate:"gte=1"`
	StartOffset        string        `mapstructure:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
	SessionTimeout     time.Duration `mapstructure:"session_timeout" default:"45s" validate:"gt=0"`
	AutoCommitInterval time.Duration `mapstructure:"auto_commit_interval" default:"5s" validate:"gt=0"`
	FetchMaxWait       time.Duration `mapstructure:"fetch_max_wait" default:"500ms" validate:"gt=0"`
}

// ProducerConfig is a named bundle of producer tuning parameters.
type ProducerConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	Acks          string        `mapstructure:"acks" default:"all" validate:"oneof=all leader none"`
	Linger        time.Duration `mapstructure:"linger" validate:"gte=0"`
	Compression   string        `mapstructure:"compression" default:"none" validate:"oneof=none gzip snappy lz4 zstd"`
	RecordRetries int           `mapstructure:"record_retries" validate:"gte=0"`
}

// TopicSpec is a resolved topic: cluster name plus desired shape.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]string
}

// TopicStatus describes the outcome of a topic preflight.
type TopicStatus string

const (
	TopicStatusOK       TopicStatus = "OK"
	TopicStatusCreated  TopicStatus = "CREATED"
	TopicStatusMissing  TopicStatus = "MISSING"
	TopicStatusMismatch TopicStatus = "MISMATCH"
	TopicStatusFailed   TopicStatus = "FAILED"
)

// TopicResult is the observed state of one topic after EnsureTopicExists.
type TopicResult struct {
	Topic                    string
	Status                   TopicStatus
	DesiredPartitions        int32
	ActualPartitions         int32
	DesiredReplicationFactor int16
	ActualReplicationFactor  int16
	Err                      error
}

// EnsureOptions selects what EnsureTopicExists may do.
type EnsureOptions struct {
	CreateIfMissing bool
	Verify          bool
}
