package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"agentmesh/internal/infra/config"
)

const serviceName = "agentmesh"

// New builds the process logger from configuration. Every record carries a
// service attribute so log aggregators can tell this daemon apart from the
// agent runtimes it manages. The returned closer flushes the log file when
// the output points at one.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := output(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		// Source positions only at debug level.
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler).With("service", serviceName), closer, nil
}

// parseLevel maps a configured level name onto slog's scale. Unknown names
// fall back to info; config validation rejects them before this runs.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func output(target string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
