package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog creates a zerolog logger for the components that log through
// zerolog (database and influx managers, the message dispatcher). Output is
// JSON unless w is nil, in which case a console writer on stdout is used.
func NewZerolog(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: osStdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(parseZerologLevel(level)).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

func parseZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
