// Package logging constructs the process-wide zerolog.Logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger with sane defaults for the service. In
// "development" env it writes a human-readable console format; otherwise
// plain JSON lines suitable for aggregation.
func New(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		level = lvl
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger so callers outside this package depend on
// the logging contract without importing the third-party module directly.
type Logger = zerolog.Logger
