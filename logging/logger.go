package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. Development gets a console writer and debug
// level unless level says otherwise.
func New(appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
		if appEnv == "development" {
			lvl = zerolog.DebugLevel
		}
	}

	logger := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "filealchemy").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}
