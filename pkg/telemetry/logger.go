package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `json:"level"`

	// Format is "console" for human-readable output or "json".
	Format string `json:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `json:"output"`
}

// DefaultLoggingConfig returns the configuration used when none is given.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// NewLogger creates a zerolog logger with the given configuration.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		writer = file
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.Kitchen,
		}
	}

	logger := zerolog.New(writer).With().Timestamp().Logger()
	logger = logger.Level(ParseLogLevel(cfg.Level))
	return logger, nil
}

// SetupGlobal replaces the global zerolog logger used via zerolog/log.
func SetupGlobal(cfg LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	log.Logger = logger
	zerolog.SetGlobalLevel(ParseLogLevel(cfg.Level))
	return nil
}

// ParseLogLevel maps a level string to a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
