package logging

import (
	"log"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Setup installs the process-wide logger. format is "json" or "console".
func Setup(level, format string) error {
	var config zap.Config
	if format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		parsedLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(parsedLevel)
	config.DisableStacktrace = true

	built, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	mu.Lock()
	logger = built.Sugar()
	mu.Unlock()
	return nil
}

// Use installs an already built logger.
func Use(built *zap.Logger) {
	mu.Lock()
	logger = built.WithOptions(zap.AddCallerSkip(1)).Sugar()
	mu.Unlock()
}

// Disable turns off all logging
func Disable() {
	mu.Lock()
	logger = zap.NewNop().Sugar()
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger carrying the given key/value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return current().Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().With(keysAndValues...)
}

// StdLog adapts the logger for libraries that take a *log.Logger.
func StdLog() *log.Logger {
	return zap.NewStdLog(current().Desugar().WithOptions(zap.AddCallerSkip(-1)))
}

func Debugf(format string, v ...any) { current().Debugf(format, v...) }

func Infof(format string, v ...any) { current().Infof(format, v...) }

func Warnf(format string, v ...any) { current().Warnf(format, v...) }

func Errorf(format string, v ...any) { current().Errorf(format, v...) }
