// Package observability wires process-wide logging.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger. It defaults to a no-op logger so
// commands and packages can log before InitLogging runs.
var CLILogger = zap.NewNop()

// InitLogging builds the process logger.
//
// Parameters:
//   - level: zap level name (debug, info, warn, error)
//   - profile: "structured" for JSON output, "console" for human output
func InitLogging(level, profile string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch profile {
	case "", "structured":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("unknown logging profile %q", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	// Logs go to stderr; stdout stays clean for command output.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	CLILogger = logger
	return nil
}

// SyncLogger flushes buffered log entries. Safe to call at process exit.
// Sync errors on stderr are expected on some platforms and ignored.
func SyncLogger() {
	_ = CLILogger.Sync()
}
