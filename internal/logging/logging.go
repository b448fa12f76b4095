// Package logging builds the Neural Engine's root logger once at process
// start and hands every component a logr.Logger, so components never
// import zap directly (spec.md §A, ambient stack).
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/neurascale/neural-engine/internal/config"
)

// New builds a logr.Logger from cfg. Format "json" (the default) uses
// zap's production JSON encoder; any other value uses the human-readable
// console encoder, intended for local development.
func New(cfg config.LoggingConfig) (logr.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return logr.Logger{}, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format != "json" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLog, err := zapCfg.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("logging: build zap logger: %w", err)
	}

	return zapr.NewLogger(zapLog), nil
}

// Discard returns a no-op logr.Logger, for tests and components built
// without an explicit logger.
func Discard() logr.Logger {
	return logr.Discard()
}
