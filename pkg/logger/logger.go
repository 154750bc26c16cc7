package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

var (
	serviceName = "autohedge"
	verbose     atomic.Bool
)

// Init builds the process logger. level is "debug"|"info"|"warn"; anything
// else falls back to info.
func Init(level string) error {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug", "verbose":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		verbose.Store(true)
	case "warn", "low":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	base.Store(l)
	return nil
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName
	return oldName
}

// Verbose reports whether heartbeat-grade logging is enabled.
func Verbose() bool { return verbose.Load() }

func get() *zap.Logger {
	if l := base.Load(); l != nil {
		return l
	}
	// Tests and tools that never call Init still get output.
	l, _ := zap.NewProduction(zap.AddCallerSkip(1))
	base.CompareAndSwap(nil, l)
	return base.Load()
}

func Debug(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	get().With(zap.String("service", serviceName)).Fatal(fmt.Sprintf(format, args...))
}
