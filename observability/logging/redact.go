package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// MaskValue returns the placeholder for non-empty values. Empty values are
// returned unchanged so a missing secret is still visible.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// Secret returns an attribute whose value is masked.
func Secret(key, value string) slog.Attr {
	return slog.String(key, MaskValue(value))
}
