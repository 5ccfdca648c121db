package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a JSON zerolog.Logger on stdout tagged with the service name.
// An unknown level falls back to info.
func New(service, level string) zerolog.Logger {
	return newLogger(os.Stdout, service, level)
}

func newLogger(w io.Writer, service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
	zerolog.DefaultContextLogger = &l
	return l
}
