package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs a JSON logger on stdout as the global zerolog logger.
func Init(service, level string) zerolog.Logger {
	return InitWithWriter(os.Stdout, service, level)
}

func InitWithWriter(w io.Writer, service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.SetGlobalLevel(parseLevel(level))

	logger := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
