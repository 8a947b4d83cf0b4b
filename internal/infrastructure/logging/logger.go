package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/config"
)

// serviceName is attached as a default field to every log entry.
const serviceName = "melbridge"

// Logger wraps slog.Logger with the bridge's default fields. Component
// packages receive it through their own small Logger interfaces, so
// anything with slog-shaped Debug/Info/Warn/Error methods satisfies
// them.
//
// Thread Safety: all methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a logger from the config's logging section: JSON or text
// format, level filtering, stdout or stderr, with service and version
// stamped on every entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return newLogger(cfg, version, output)
}

// newLogger is the writer-injectable core of New, split out so tests
// can capture output.
func newLogger(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// parseLevel maps a config level string onto slog. Unrecognised levels
// fall back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger carrying additional default attributes,
// typically a component name.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns the bootstrap logger used before the config file is
// loaded: JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
