package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signal-relay/src/models"
)

// -----------------------------------------------------------------------------

// Logger wraps a zerolog logger with a component name so every subsystem
// (tcp_server, relay, retry_queue...) logs under its own tag.
type Logger struct {
	name string
	zl   zerolog.Logger
}

// -----------------------------------------------------------------------------

// NewLogger creates a named logger. config is the loaded *models.MConfig;
// anything else (tests pass nil) falls back to the info level.
func NewLogger(config interface{}, name string) *Logger {
	level := zerolog.InfoLevel
	if cfg, ok := config.(*models.MConfig); ok && cfg != nil {
		level = parseLevel(cfg.LogLevel)
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Str("component", name).
		Logger()

	return &Logger{name: name, zl: zl}
}

// -----------------------------------------------------------------------------

// parseLevel maps the config's log_level names onto zerolog levels. Unknown
// values mean info rather than an error, we don't want a typo in the yaml
// to keep the service from starting.
func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// Debug logs fine-grained frame and state traffic
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable conditions
func (l *Logger) Warning(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs a fatal condition and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.zl.Fatal().Msgf(format, args...)
}
