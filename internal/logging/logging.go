// Package logging builds the process-wide structured logger and the
// narrow Warnw/Infow sink interfaces the rest of the server depends on,
// so no package outside this one imports zap directly.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's verbosity and output encoding.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

// DefaultConfig matches the defaults new installs should ship with.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// Sink is the narrow leveled-logging surface packages like
// internal/reload depend on, so they never import zap themselves.
type Sink interface {
	Warnw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// Logger wraps a *zap.SugaredLogger and satisfies Sink.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger from cfg. An unrecognized level falls back to
// info rather than failing startup over a config typo.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	base, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return &Logger{sugar: base.Sugar()}, nil
}

func (l *Logger) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Sync flushes any buffered log entries, to be called before process exit.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// Named returns a child logger with a component name attached to every entry.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}
