package kafka

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var (
	validate = newValidator()

	legalTopicName = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,249}$`)
	brokerHostname = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("broker", isBrokerAddress); err != nil {
		panic(err)
	}
	return v
}

// isBrokerAddress accepts host:port seeds the way kgo dials them, including
// bracketed IPv6 literals such as [::1]:9092.
func isBrokerAddress(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || host == "" {
		return false
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if i := strings.IndexByte(host, '%'); i > 0 && net.ParseIP(host[:i]) != nil {
		return true
	}
	return brokerHostname.MatchString(host)
}

// ApplyDefaults fills zero-valued fields from their default tags, including
// every named topic, listener and producer bundle.
func (c *Config) ApplyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply kafka defaults: %w", err)
	}

	c.Security.AuthMechanism = strings.ToUpper(strings.TrimSpace(c.Security.AuthMechanism))
	for i, broker := range c.Brokers {
		c.Brokers[i] = strings.TrimSpace(broker)
	}

	// Config files arrive with lowercased keys, so every key is stored
	// lowercased and looked up the same way. A topic named only by its key
	// keeps the key's original case as its cluster name.
	topics := make(map[string]TopicConfig, len(c.Topics))
	for name, topic := range c.Topics {
		if err := defaults.Set(&topic); err != nil {
			return fmt.Errorf("apply defaults for topic %q: %w", name, err)
		}
		if topic.Name == "" {
			topic.Name = name
		}
		if err := putKey(topics, name, topic, "topic"); err != nil {
			return err
		}
	}
	listeners := make(map[string]ListenerConfig, len(c.ListenerConfigs))
	for name, listener := range c.ListenerConfigs {
		if err := defaults.Set(&listener); err != nil {
			return fmt.Errorf("apply defaults for listener config %q: %w", name, err)
		}
		if err := putKey(listeners, name, listener, "listener config"); err != nil {
			return err
		}
	}
	producers := make(map[string]ProducerConfig, len(c.Producers))
	for name, producer := range c.Producers {
		if err := defaults.Set(&producer); err != nil {
			return fmt.Errorf("apply defaults for producer config %q: %w", name, err)
		}
		if err := putKey(producers, name, producer, "producer config"); err != nil {
			return err
		}
	}
	if c.Topics != nil {
		c.Topics = topics
	}
	if c.ListenerConfigs != nil {
		c.ListenerConfigs = listeners
	}
	if c.Producers != nil {
		c.Producers = producers
	}

	return nil
}

// normalizeKey is the form every topic, listener and producer key is stored
// and looked up in.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func putKey[T any](m map[string]T, key string, value T, kind string) error {
	normalized := normalizeKey(key)
	if _, dup := m[normalized]; dup {
		return fmt.Errorf("%s keys collide after lowercasing: %q", kind, normalized)
	}
	m[normalized] = value
	return nil
}

// Validate checks the struct tags and the topic names of every topic bundle.
// Failures are returned as *ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError("", err)
	}

	for key, topic := range c.Topics {
		name := topic.Name
		if name == "" {
			name = key
		}
		if !legalTopicName.MatchString(name) {
			return configError(name, "topics."+key, "topic name must match [a-zA-Z0-9._-]{1,249}")
		}
	}

	return nil
}

// Clone returns a deep copy so callers can keep mutating their value.
func (c Config) Clone() Config {
	out := c
	out.Brokers = append([]string(nil), c.Brokers...)
	if c.Topics != nil {
		out.Topics = make(map[string]TopicConfig, len(c.Topics))
		for k, v := range c.Topics {
			if v.Configs != nil {
				configs := make(map[string]string, len(v.Configs))
				for ck, cv := range v.Configs {
					configs[ck] = cv
				}
				v.Configs = configs
			}
			out.Topics[k] = v
		}
	}
	if c.ListenerConfigs != nil {
		out.ListenerConfigs = make(map[string]ListenerConfig, len(c.ListenerConfigs))
		for k, v := range c.ListenerConfigs {
			out.ListenerConfigs[k] = v
		}
	}
	if c.Producers != nil {
		out.Producers = make(map[string]ProducerConfig, len(c.Producers))
		for k, v := range c.Producers {
			out.Producers[k] = v
		}
	}
	return out
}

// TopicSpec resolves a registration topic. A key of the topics map, matched
// without regard to case, yields the configured shape; anything else is taken as a literal topic name with one
// partition and a replication factor of one.
func (c *Config) TopicSpec(topic string) (TopicSpec, error) {
	if tc, ok := c.Topics[normalizeKey(topic)]; ok {
		name := tc.Name
		if name == "" {
			name = topic
		}
		return TopicSpec{
			Name:              name,
			Partitions:        tc.Partitions,
			ReplicationFactor: tc.ReplicationFactor,
			Configs:           tc.Configs,
		}, nil
	}

	if !legalTopicName.MatchString(topic) {
		return TopicSpec{}, configError(topic, "topic", "topic name must match [a-zA-Z0-9._-]{1,249}")
	}

	return TopicSpec{Name: topic, Partitions: 1, ReplicationFactor: 1}, nil
}

// Listener looks up a listener config by name. The empty name selects the
// defaults.
func (c *Config) Listener(name string) (ListenerConfig, error) {
	if name == "" {
		var lc ListenerConfig
		if err := defaults.Set(&lc); err != nil {
			return lc, fmt.Errorf("apply listener defaults: %w", err)
		}
		return lc, nil
	}

	lc, ok := c.ListenerConfigs[normalizeKey(name)]
	if !ok {
		return lc, configError("", "listener_configs", fmt.Sprintf("unknown listener config %q", name))
	}
	return lc, nil
}

// Producer looks up a producer config by name. The empty name selects the
// defaults.
func (c *Config) Producer(name string) (ProducerConfig, error) {
	if name == "" {
		var pc ProducerConfig
		if err := defaults.Set(&pc); err != nil {
			return pc, fmt.Errorf("apply producer defaults: %w", err)
		}
		return pc, nil
	}

	pc, ok := c.Producers[normalizeKey(name)]
	if !ok {
		return pc, configError("", "producers", fmt.Sprintf("unknown producer config %q", name))
	}
	return pc, nil
}

func validationError(topic string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fmt.Sprintf("failed %q validation", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
		}
		return &ConfigurationError{Topic: topic, Field: fe.Namespace(), Reason: reason, Err: err}
	}
	return &ConfigurationError{Topic: topic, Err: err}
}
