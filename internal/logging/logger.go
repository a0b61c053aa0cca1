// Package logging provides the prefixed structured logger used across the worker.
package logging

import (
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

func init() {
	base.Store(zap.NewNop())
}

// NewBase builds the process logger for the given level ("debug", "info", "warn", "error")
func NewBase(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

// SetBase installs the zap logger every Logger writes through
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	base.Store(l)
}

// Logger provides structured logging for one component
type Logger struct {
	prefix string
}

// New returns a logger tagged with the component prefix
func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) log(level zapcore.Level, msg string, fields map[string]interface{}) {
	logger := base.Load().Named(l.prefix)
	if ce := logger.Check(level, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log(zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log(zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.log(zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.log(zapcore.DebugLevel, msg, fields)
}

// Banner writes a separator line around long-running stages
func (l *Logger) Banner() {
	l.Info("═══════════════════════════════════════════════════════════", nil)
}

// toZapFields sorts keys so output is stable between runs
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
