// Package logger provides the zap-backed structured logger shared by every component.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls the logger's verbosity and encoding.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

var (
	defaultMu  sync.RWMutex
	defaultLog = zap.NewNop()
)

// NewLogger builds a zap.Logger from a LoggingConfig.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zcfg.Encoding = "json"
	case "console":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zcfg.Build()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// SetDefault installs log as the package-level default, returned by Default.
func SetDefault(log *zap.Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLog = log
}

// Default returns the current package-level logger. Safe to call before SetDefault;
// returns a no-op logger until one is installed.
func Default() *zap.Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLog
}

// Component returns a child logger tagged with a "component" field, the convention
// used across every package in this service.
func Component(name string) *zap.Logger {
	return Default().With(zap.String("component", name))
}
