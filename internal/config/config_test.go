package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	originalWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%s): %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWD); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestLoadFromPath_FullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	writeFile(t, path, `kafka:
  brokers:
    - kafka-a:9092
    - kafka-b:9092
  security:
    auth_mechanism: SCRAM-SHA-512
    username: svc
    password: secret
  admin:
    request_timeout: 3s
    max_retries: 2
  topics:
    orders:
      name: orders.v1
      partitions: 6
      replication_factor: 3
      configs:
        retention.ms: "86400000"
  listener_configs:
    billing:
      group_id: billing
      instances: 2
      start_offset: latest
      session_timeout: 30s
  producers:
    bulk:
      acks: leader
      compression: zstd
      linger: 10ms
logging:
  verbose: true
  format: JSON
output: Text
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	k := cfg.Kafka
	if len(k.Brokers) != 2 || k.Brokers[1] != "kafka-b:9092" {
		t.Fatalf("brokers = %#v", k.Brokers)
	}
	if k.Security.AuthMechanism != "SCRAM-SHA-512" || k.Security.Username != "svc" {
		t.Fatalf("security = %+v", k.Security)
	}
	if k.Admin.RequestTimeout != 3*time.Second || k.Admin.MaxRetries != 2 {
		t.Fatalf("admin = %+v", k.Admin)
	}

	orders, ok := k.Topics["orders"]
	if !ok {
		t.Fatalf("topics = %#v", k.Topics)
	}
	if orders.Name != "orders.v1" || orders.Partitions != 6 || orders.ReplicationFactor != 3 {
		t.Fatalf("orders = %+v", orders)
	}
	if orders.Configs["retention.ms"] != "86400000" {
		t.Fatalf("orders configs = %#v", orders.Configs)
	}

	billing := k.ListenerConfigs["billing"]
	if billing.GroupID != "billing" || billing.Instances != 2 || billing.SessionTimeout != 30*time.Second {
		t.Fatalf("billing = %+v", billing)
	}
	bulk := k.Producers["bulk"]
	if bulk.Acks != "leader" || bulk.Linger != 10*time.Millisecond {
		t.Fatalf("bulk = %+v", bulk)
	}

	if !cfg.Logging.Verbose || cfg.Logging.Format != "json" || cfg.Output != "text" {
		t.Fatalf("logging = %+v, output = %q", cfg.Logging, cfg.Output)
	}
}

func TestLoadFromPath_ExpandsEnvironment(t *testing.T) {
	t.Setenv("KAFKABUNDLE_USER", "alice")
	t.Setenv("KAFKABUNDLE_EMPTY", "")

	path := filepath.Join(t.TempDir(), DefaultFileName)
	writeFile(t, path, `kafka:
  brokers: ["${KAFKABUNDLE_UNSET_HOST:-localhost}:9092"]
  security:
    auth_mechanism: PLAIN
    username: ${KAFKABUNDLE_USER}
    password: ${KAFKABUNDLE_EMPTY:-fallback}
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("brokers = %#v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Security.Username != "alice" || cfg.Kafka.Security.Password != "fallback" {
		t.Fatalf("security = %+v", cfg.Kafka.Security)
	}
}

func TestLoadFromPath_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "KAFKABUNDLE_TEST_PASSWORD=from-dotenv\nKAFKABUNDLE_TEST_USER=dotenv-user\n")
	writeFile(t, filepath.Join(dir, DefaultFileName), `kafka:
  brokers: ["localhost:9092"]
  security:
    auth_mechanism: PLAIN
    username: ${KAFKABUNDLE_TEST_USER}
    password: ${KAFKABUNDLE_TEST_PASSWORD}
`)
	// Already-set variables win over .env.
	t.Setenv("KAFKABUNDLE_TEST_USER", "from-env")
	t.Cleanup(func() { os.Unsetenv("KAFKABUNDLE_TEST_PASSWORD") })

	cfg, err := LoadFromPath(filepath.Join(dir, DefaultFileName))
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Kafka.Security.Password != "from-dotenv" {
		t.Fatalf("password = %q, want value from .env", cfg.Kafka.Security.Password)
	}
	if cfg.Kafka.Security.Username != "from-env" {
		t.Fatalf("username = %q, want the pre-set environment value", cfg.Kafka.Security.Username)
	}
}

func TestLoadFromPath_MixedCaseKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	writeFile(t, path, `kafka:
  brokers: ["localhost:12345"]
  topics:
    orderEvents:
      name: order-events
      partitions: 6
    AuditTrail:
      partitions: 2
  listener_configs:
    orderListener:
      group_id: orders
      instances: 3
  producers:
    BulkWriter:
      acks: leader
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	k := cfg.Kafka
	if err := k.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if err := k.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	spec, err := k.TopicSpec("orderEvents")
	if err != nil {
		t.Fatalf("TopicSpec: %v", err)
	}
	if spec.Name != "order-events" || spec.Partitions != 6 {
		t.Fatalf("TopicSpec(orderEvents) = %+v, want the configured topic", spec)
	}
	// Without an explicit name the cluster topic is the key as the file
	// decoder delivers it.
	audit, err := k.TopicSpec("AuditTrail")
	if err != nil || audit.Partitions != 2 || audit.Name != "audittrail" {
		t.Fatalf("TopicSpec(AuditTrail) = %+v, %v", audit, err)
	}

	lc, err := k.Listener("orderListener")
	if err != nil || lc.GroupID != "orders" || lc.Instances != 3 {
		t.Fatalf("Listener(orderListener) = %+v, %v", lc, err)
	}
	pc, err := k.Producer("BulkWriter")
	if err != nil || pc.Acks != "leader" {
		t.Fatalf("Producer(BulkWriter) = %+v, %v", pc, err)
	}
}

func TestLoad_AutoDiscovery(t *testing.T) {
	cwdDir := t.TempDir()
	homeDir := t.TempDir()

	cwdConfig := filepath.Join(cwdDir, DefaultFileName)
	writeFile(t, cwdConfig, "kafka:\n  brokers: [\"cwd:9092\"]\n")
	writeFile(t, filepath.Join(homeDir, DefaultFileName), "kafka:\n  brokers: [\"home:9092\"]\n")

	chdir(t, cwdDir)
	t.Setenv("HOME", homeDir)

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatalf("Load() cfg is nil")
	}
	if !samePath(path, cwdConfig) {
		t.Fatalf("loaded path = %q, want %q", path, cwdConfig)
	}
	if cfg.Kafka.Brokers[0] != "cwd:9092" {
		t.Fatalf("brokers = %#v, want cwd:9092", cfg.Kafka.Brokers)
	}
}

func TestLoad_AutoDiscoveryHomeFallback(t *testing.T) {
	cwdDir := t.TempDir()
	homeDir := t.TempDir()
	homeConfig := filepath.Join(homeDir, alternateName)
	writeFile(t, homeConfig, "kafka:\n  brokers: [\"home:9092\"]\n")

	chdir(t, cwdDir)
	t.Setenv("HOME", homeDir)

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatalf("Load() cfg is nil")
	}
	if !samePath(path, homeConfig) {
		t.Fatalf("loaded path = %q, want %q", path, homeConfig)
	}
}

func TestLoad_NoFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != nil || path != "" {
		t.Fatalf("Load() = (%v, %q), want (nil, \"\")", cfg, path)
	}
}

func TestLoadFromPath_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{name: "unknown-root-key", content: "unknown: value\n"},
		{name: "unknown-kafka-key", content: "kafka:\n  bootstrap: localhost:9092\n"},
		{name: "bad-duration", content: "kafka:\n  admin:\n    request_timeout: soon\n"},
		{name: "not-yaml", content: "kafka: [unclosed\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			writeFile(t, path, tc.content)
			if _, err := LoadFromPath(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseBrokerList(t *testing.T) {
	cases := []struct {
		raw     string
		want    []string
		wantErr bool
	}{
		{raw: `["localhost:12345"]`, want: []string{"localhost:12345"}},
		{raw: `["a:9092", "b:9092"]`, want: []string{"a:9092", "b:9092"}},
		{raw: "a:9092, b:9092,", want: []string{"a:9092", "b:9092"}},
		{raw: "  ", want: nil},
		{raw: "[::1]:9092", want: []string{"[::1]:9092"}},
		{raw: "[::1]:9092,[fd00::2]:9093", want: []string{"[::1]:9092", "[fd00::2]:9093"}},
		{raw: `["[::1]:9092"]`, want: []string{"[::1]:9092"}},
		{raw: `["a:9092"`, wantErr: true},
		{raw: `[]`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseBrokerList(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("ParseBrokerList(%q) = %#v, want %#v", tc.raw, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("ParseBrokerList(%q) = %#v, want %#v", tc.raw, got, tc.want)
				}
			}
		})
	}
}

func TestApplyEnvironment(t *testing.T) {
	cfg := &Config{}
	cfg.Kafka.Brokers = []string{"file:9092"}

	t.Setenv(BrokerEnvVar, "")
	if err := cfg.ApplyEnvironment(); err != nil || cfg.Kafka.Brokers[0] != "file:9092" {
		t.Fatalf("empty env should keep file brokers: %v %v", cfg.Kafka.Brokers, err)
	}

	t.Setenv(BrokerEnvVar, `["localhost:12345"]`)
	if err := cfg.ApplyEnvironment(); err != nil {
		t.Fatalf("ApplyEnvironment: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:12345" {
		t.Fatalf("brokers = %#v", cfg.Kafka.Brokers)
	}

	t.Setenv(BrokerEnvVar, `[broken`)
	if err := cfg.ApplyEnvironment(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func samePath(left, right string) bool {
	leftResolved, leftErr := filepath.EvalSymlinks(left)
	rightResolved, rightErr := filepath.EvalSymlinks(right)
	if leftErr == nil && rightErr == nil {
		return leftResolved == rightResolved
	}

	return filepath.Clean(left) == filepath.Clean(right)
}
