package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupWriterRenamesKeys(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "stakingd", "prod")
	logger.Info("ledger ready", Secret("secret", "hunter2"), slog.Int("units", 3))
	logger.Debug("hidden in prod")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "ledger ready" || line["severity"] != "INFO" {
		t.Fatalf("unexpected line %v", line)
	}
	if line["service"] != "stakingd" || line["env"] != "prod" {
		t.Fatalf("missing service attrs %v", line)
	}
	if line["secret"] != RedactedValue {
		t.Fatalf("secret not masked: %v", line["secret"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp key missing")
	}
}

func TestMaskValueKeepsEmpty(t *testing.T) {
	if MaskValue("  ") != "  " {
		t.Fatalf("empty value should pass through")
	}
	if MaskValue("x") != RedactedValue {
		t.Fatalf("value not masked")
	}
}
