package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a configured level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to w in the given format (json or console)
func New(w io.Writer, level, format string) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Init initializes the global logger with the specified level and format.
// S3BACKEND_LOG, when set, overrides the level.
func Init(level, format string) {
	if env := os.Getenv("S3BACKEND_LOG"); env != "" {
		level = env
	}

	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = New(os.Stderr, level, format)
}

// Get returns a reference to the global logger
func Get() *zerolog.Logger {
	return &log.Logger
}
