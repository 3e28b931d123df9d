// Package logger builds the process-wide zerolog logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/castifi/bugtracker-dashboard/config"
)

// New builds the logger for the given configuration. Dev environments get a
// human-readable console writer; everything else logs JSON lines with
// RFC3339 timestamps. The returned logger is also installed as the global
// zerolog logger.
func New(cfg config.Config) zerolog.Logger {
	if cfg.AppEnv == "dev" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger := zerolog.New(output).With().Timestamp().Logger()
		log.Logger = logger

		return logger
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}
