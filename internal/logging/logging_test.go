package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false, "JSON").Warn("broker ping failed", "brokers", "localhost:12345")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json handler output %q: %v", buf.String(), err)
	}
	if entry["msg"] != "broker ping failed" || entry["brokers"] != "localhost:12345" {
		t.Fatalf("entry = %v", entry)
	}

	buf.Reset()
	New(&buf, false, "").Warn("topic created", "topic", "t1")
	if !strings.Contains(buf.String(), "msg=\"topic created\"") || !strings.Contains(buf.String(), "topic=t1") {
		t.Fatalf("text output = %q", buf.String())
	}
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false, "text").Debug("hidden")
	New(&buf, false, "text").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("quiet logger wrote %q", buf.String())
	}

	New(&buf, true, "text").Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("verbose logger dropped debug output")
	}
}
