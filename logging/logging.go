// Package logging builds zap loggers for the indexing pipeline's long-running
// components (Partition Indexer, Parallel Orchestrator, Query Client) from a
// small style/level configuration surface instead of package-level globals.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Style selects the log encoder.
type Style string

const (
	StyleTerminal Style = "terminal"
	StyleJson     Style = "json"
	StyleNoop     Style = "noop"
)

// Level mirrors zapcore's level names as a closed, config-friendly enum.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config selects the logger style and minimum level. The zero value
// produces a terminal logger at info level.
type Config struct {
	Style Style
	Level Level
}

// NewLogger creates a zap logger based on the Config settings.
// If config is nil or has empty values, defaults to terminal style with info level.
func NewLogger(c *Config) *zap.Logger {
	var err error
	var logger *zap.Logger

	loggingStyle := StyleTerminal
	logLevel := zapcore.InfoLevel

	if c != nil {
		if c.Style != "" {
			loggingStyle = c.Style
		}
		if c.Level != "" {
			lvl, parseErr := zapcore.ParseLevel(string(c.Level))
			if parseErr == nil {
				logLevel = lvl
			}
		}
	}

	switch loggingStyle {
	case StyleNoop:
		logger = zap.NewNop()
	case StyleJson:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(logLevel)
		logger, err = cfg.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zap.ErrorLevel),
		)
	case StyleTerminal:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(logLevel)
		logger, err = cfg.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zap.ErrorLevel),
		)
	default:
		panic(fmt.Sprintf("invalid logging style %q: must be one of terminal, json, noop", loggingStyle))
	}

	if err != nil {
		panic(fmt.Sprintf("can't initialize zap logger: %v", err))
	}
	return logger
}
