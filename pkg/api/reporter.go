package api

import (
	"context"
	"log/slog"
)

// Reporter is the user-facing message channel of a run. Diagnostics are
// replayed through Warn.
type Reporter interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Child(namespace string) Reporter
}

// SlogReporter writes reporter messages to a slog.Logger.
type SlogReporter struct {
	Logger *slog.Logger
}

// NewReporter creates a Reporter backed by logger. If logger is nil,
// slog.Default() is used.
func NewReporter(logger *slog.Logger) Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{Logger: logger}
}

func (r *SlogReporter) Debug(msg string, args ...any) { r.Logger.Debug(msg, args...) }
func (r *SlogReporter) Info(msg string, args ...any)  { r.Logger.Info(msg, args...) }
func (r *SlogReporter) Warn(msg string, args ...any)  { r.Logger.Warn(msg, args...) }
func (r *SlogReporter) Error(msg string, args ...any) { r.Logger.Error(msg, args...) }

func (r *SlogReporter) Child(namespace string) Reporter {
	return &SlogReporter{Logger: r.Logger.With(slog.String("namespace", namespace))}
}

// NoopReporter discards everything.
type NoopReporter struct{}

func (NoopReporter) Debug(string, ...any)   {}
func (NoopReporter) Info(string, ...any)    {}
func (NoopReporter) Warn(string, ...any)    {}
func (NoopReporter) Error(string, ...any)   {}
func (NoopReporter) Child(string) Reporter { return NoopReporter{} }

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger stored by WithLogger, or
// slog.Default() when there is none.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
