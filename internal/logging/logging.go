// Package logging builds the process logger. Logs go to a file so they never
// interleave with the interactive terminal.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samsaffron/term-agent/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON file logger at the configured level. verbose forces
// debug level.
func New(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	path, err := cfg.LogPath()
	if err != nil {
		return nil, fmt.Errorf("resolve log path: %w", err)
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	return build(path, level)
}

func build(path string, level zapcore.Level) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
