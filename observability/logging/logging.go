package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig enables a rotating log file next to stdout.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures the standard library logger to emit structured JSON to
// stdout and returns the underlying slog.Logger. All log lines include the
// service name and environment when provided.
func Setup(service, env string) *slog.Logger {
	return SetupWriter(os.Stdout, service, env)
}

// SetupWithFile behaves like Setup and also writes every line to a rotating
// file. The returned closer releases the file.
func SetupWithFile(service, env string, file FileConfig) (*slog.Logger, io.Closer) {
	if strings.TrimSpace(file.Path) == "" {
		return Setup(service, env), io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   true,
	}
	return SetupWriter(io.MultiWriter(os.Stdout, rotator), service, env), rotator
}

// SetupWriter installs the JSON handler over w as the process default.
func SetupWriter(w io.Writer, service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: levelFor(env),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// dev environments get debug output, which includes every committed ledger
// operation.
func levelFor(env string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
