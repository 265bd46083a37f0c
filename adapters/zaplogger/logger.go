// Package zaplogger backs the container's glog contract with zap.
package zaplogger

import (
	"context"
	"strings"

	"github.com/goliatone/go-container/core"
	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger adapts a zap.SugaredLogger to glog.Logger. Arguments are read as
// alternating key/value pairs.
type Logger struct {
	sugar *zap.SugaredLogger
}

func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar()}
}

// NewProduction builds a JSON logger at level ("debug", "info", "warn",
// "error"; empty means info).
func NewProduction(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(base), nil
}

func (l *Logger) Trace(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.sugar.Fatalw(msg, args...) }

// WithContext tags entries with the active call's call_id and component_id.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	call, ok := core.CallContextFrom(ctx)
	if !ok {
		return l
	}
	args := []any{"call_id", call.CallID()}
	if component := call.Component(); component != nil {
		args = append(args, "component_id", component.ID())
	}
	return l.With(args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Provider hands out loggers named after the requested component.
type Provider struct {
	base *zap.Logger
}

func NewProvider(base *zap.Logger) *Provider {
	if base == nil {
		base = zap.NewNop()
	}
	return &Provider{base: base}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if strings.TrimSpace(name) == "" {
		return New(p.base)
	}
	return New(p.base.Named(name))
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
