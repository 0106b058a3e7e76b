// Package logging constructs the zerolog logger used across the pipeline.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger with sane defaults for the pipeline.
// In development the console writer is used; everywhere else JSON.
func New(env string, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose || env == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}
