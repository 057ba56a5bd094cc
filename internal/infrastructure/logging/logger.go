package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hearth-home/hearth-core/internal/infrastructure/config"
)

// serviceName tags every log line so aggregated logs from several
// services on the same host stay distinguishable.
const serviceName = "hearth"

// Logger is the structured logger used throughout Hearth Core. It
// embeds slog.Logger, so the full slog API is available, with the
// service name and version attached to every entry.
//
// All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration:
// output destination (stdout or stderr), format (json or text) and
// minimum level. Unrecognised values fall back to stdout, json and
// info respectively, so a bad config never silences logging.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		w = os.Stderr
	default:
		w = os.Stdout
	}

	return &Logger{Logger: slog.New(newHandler(cfg, version, w))}
}

// Default returns a logger for early startup, before the config file
// has been read. JSON to stdout at info level, like the production
// default, so the first few lines match the rest.
func Default() *Logger {
	cfg := config.LoggingConfig{Level: "info", Format: "json"}
	return &Logger{Logger: slog.New(newHandler(cfg, "unknown", os.Stdout))}
}

// With returns a child logger that carries the given attributes on
// every entry, typically a component name:
//
//	roomLog := log.With("component", "room")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// newHandler builds the slog handler for the given config and writer.
// Split from New so tests can capture output in a buffer.
func newHandler(cfg config.LoggingConfig, version string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
}

// levelFor maps a config level string to a slog.Level. Case does not
// matter; anything unrecognised means info.
func levelFor(level string) slog.Level {
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
