package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aki/agentpost/internal/core/logger"
)

// Global flags for logging configuration
var (
	flagLogLevel  string
	flagLogFormat string
)

// RegisterLoggerFlags registers global logging flags
func RegisterLoggerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
}

func validateLoggerFlags() error {
	if _, err := logger.ParseLevel(flagLogLevel); err != nil {
		return err
	}
	_, err := logger.ParseFormat(flagLogFormat)
	return err
}

// CreateLogger creates a logger based on CLI flags. Logs always go to
// stderr so they never mix with command output or the MCP stdio stream.
func CreateLogger() logger.Logger {
	level, err := logger.ParseLevel(flagLogLevel)
	if err != nil {
		level, _ = logger.ParseLevel("warn")
	}
	format, err := logger.ParseFormat(flagLogFormat)
	if err != nil {
		format = logger.FormatText
	}

	return logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithOutput(os.Stderr),
	)
}
