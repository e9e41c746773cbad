// Package logutil holds the process-wide zap logger.
package logutil

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// InitLogger installs a console logger writing to stderr at the given level
// ("debug", "info", "warn", "error").
func InitLogger(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	SetLogger(l)

	return nil
}

// SetLogger replaces the process-wide logger.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// GetLogger returns the process-wide logger. It is a no-op logger until
// InitLogger or SetLogger is called.
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
