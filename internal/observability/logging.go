// Package observability wires process-wide logging and telemetry: a CLI
// logger for command output, a structured logger for the serve path, and
// the counter registry exposed on the metrics endpoint.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger for command-line output. It is nil until
// InitCLILogger runs; the root command initializes it before any
// subcommand executes.
var CLILogger *zap.Logger

// InitCLILogger builds the CLI logger and stores it in CLILogger.
//
// The default profile prints bare messages with structured fields appended,
// which keeps command output readable for humans. Debug switches to the
// development console encoding with timestamps, levels, and callers, and
// lowers the threshold to debug.
func InitCLILogger(component string, debug bool) {
	var core zapcore.Core
	if debug {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		core = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			zapcore.DebugLevel,
		)
	} else {
		encCfg := zapcore.EncoderConfig{
			MessageKey:     "msg",
			LevelKey:       zapcore.OmitKey,
			TimeKey:        zapcore.OmitKey,
			NameKey:        zapcore.OmitKey,
			CallerKey:      zapcore.OmitKey,
			StacktraceKey:  zapcore.OmitKey,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeDuration: zapcore.StringDurationEncoder,
		}
		core = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			zapcore.InfoLevel,
		)
	}

	CLILogger = zap.New(core).Named(component)
}

// NewServerLogger builds the structured logger for long-running commands.
//
// Profile STRUCTURED emits production JSON; CONSOLE emits the development
// console encoding. Level accepts the standard zap level names (debug,
// info, warn, error).
func NewServerLogger(level, profile string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToUpper(profile) {
	case "", "STRUCTURED":
		cfg = zap.NewProductionConfig()
	case "CONSOLE":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown logging profile %q", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
