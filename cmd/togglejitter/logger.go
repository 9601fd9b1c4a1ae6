package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/randomizedcoder/toggle-jitter/internal/config"
)

// newLogger builds the process logger. Every entry carries run_id.
func newLogger(cfg *config.Config, runID string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	if cfg.LogFormat == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.InitialFields = map[string]any{"run_id": runID}
	return zc.Build()
}
