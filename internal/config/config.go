package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/ppiankov/kafkabundle/internal/kafka"
)

const (
	// DefaultFileName is the primary config file name that is auto-discovered.
	DefaultFileName = ".kafkabundle.yaml"
	alternateName   = ".kafkabundle.yml"

	// BrokerEnvVar overrides kafka.brokers when set.
	BrokerEnvVar = "BROKER_CONNECTION_STRING"

	envFileName = ".env"
)

var (
	// placeholder matches ${VAR} and ${VAR:-default}.
	placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

	// ipv6Seed matches a leading bracketed IPv6 host:port such as [::1]:9092.
	ipv6Seed = regexp.MustCompile(`^\[[0-9A-Za-z:.%]+\]:[0-9]+`)
)

// Config is the file layout of .kafkabundle.yaml.
type Config struct {
	Kafka   kafka.Config  `mapstructure:"kafka"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Output is the default report format of the preflight command.
	Output string `mapstructure:"output"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	Format  string `mapstructure:"format"`
}

// Load auto-discovers and loads a config file.
// Search order:
// 1) current working directory
// 2) user home directory
func Load() (*Config, string, error) {
	paths, err := defaultPaths()
	if err != nil {
		return nil, "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("stat config %q: %w", path, err)
		}

		cfg, err := LoadFromPath(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	return nil, "", nil
}

// LoadFromPath loads and parses a config file from an explicit path. A .env
// file in the same directory is loaded into the environment first; variables
// that are already set keep their value.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := loadEnvFile(filepath.Join(filepath.Dir(path), envFileName)); err != nil {
		return nil, err
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnvironment applies BROKER_CONNECTION_STRING on top of the file.
func (c *Config) ApplyEnvironment() error {
	raw, ok := os.LookupEnv(BrokerEnvVar)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}

	brokers, err := ParseBrokerList(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", BrokerEnvVar, err)
	}
	c.Kafka.Brokers = brokers
	return nil
}

// ParseBrokerList accepts a flow sequence such as ["a:9092", "b:9092"] or a
// plain comma-separated list. A bare IPv6 seed like [::1]:9092 is a plain
// list, not a sequence.
func ParseBrokerList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var items []string
	if strings.HasPrefix(raw, "[") && !ipv6Seed.MatchString(raw) {
		if err := yaml.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("invalid broker list %q: %w", raw, err)
		}
	} else {
		items = strings.Split(raw, ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("invalid broker list %q: no brokers", raw)
	}
	return out, nil
}

func defaultPaths() ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve current directory: %w", err)
	}

	paths := []string{
		filepath.Join(cwd, DefaultFileName),
		filepath.Join(cwd, alternateName),
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		for _, name := range []string{DefaultFileName, alternateName} {
			candidate := filepath.Join(home, name)
			if !containsPath(paths, candidate) {
				paths = append(paths, candidate)
			}
		}
	}

	return paths, nil
}

func containsPath(paths []string, target string) bool {
	for _, path := range paths {
		if path == target {
			return true
		}
	}
	return false
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func parse(data []byte) (*Config, error) {
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))

	// Topic configs such as retention.ms contain dots.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(expandEnv(data))); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, err
	}

	cfg.Output = strings.ToLower(strings.TrimSpace(cfg.Output))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	return cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default}. Unset variables without
// a default expand to the empty string.
func expandEnv(data []byte) []byte {
	return placeholder.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := placeholder.FindSubmatch(match)
		if value, ok := os.LookupEnv(string(groups[1])); ok && value != "" {
			return []byte(value)
		}
		return groups[2]
	})
}
