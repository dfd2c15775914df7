// Package logger provides the structured logging contract used across
// the service, implemented on zap.
package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface the pipeline components depend on.
// eventKey is a stable, machine-readable identifier for the log event;
// fields carry event-specific context.
type Logger interface {
	DebugObj(msg, eventKey string, fields map[string]any)
	InfoObj(msg, eventKey string, fields map[string]any)
	WarnObj(msg, eventKey string, fields map[string]any)
	ErrorObj(msg, eventKey string, fields map[string]any)
}

// ZapLogger implements Logger on a zap production logger.
type ZapLogger struct {
	l *zap.Logger
}

// New builds a JSON logger at the given level ("debug", "info",
// "warn", "error").
func New(level string) (*ZapLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &ZapLogger{l: l}, nil
}

// Sync flushes buffered log entries; call on shutdown.
func (z *ZapLogger) Sync() error {
	return z.l.Sync()
}

func (z *ZapLogger) DebugObj(msg, eventKey string, fields map[string]any) {
	z.l.Debug(msg, zapFields(eventKey, fields)...)
}

func (z *ZapLogger) InfoObj(msg, eventKey string, fields map[string]any) {
	z.l.Info(msg, zapFields(eventKey, fields)...)
}

func (z *ZapLogger) WarnObj(msg, eventKey string, fields map[string]any) {
	z.l.Warn(msg, zapFields(eventKey, fields)...)
}

func (z *ZapLogger) ErrorObj(msg, eventKey string, fields map[string]any) {
	z.l.Error(msg, zapFields(eventKey, fields)...)
}

// zapFields converts an event key plus field map into zap fields with
// deterministic ordering.
func zapFields(eventKey string, fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("event", eventKey))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// NopLogger discards everything. It is the default for components
// constructed without a logger and keeps tests quiet.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, map[string]any) {}
func (NopLogger) InfoObj(string, string, map[string]any)  {}
func (NopLogger) WarnObj(string, string, map[string]any)  {}
func (NopLogger) ErrorObj(string, string, map[string]any) {}
