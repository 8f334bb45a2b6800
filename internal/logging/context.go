package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	componentKey
	propertyKey
)

// Attribute names injected into log records.
const (
	AttrRunID     = "run_id"
	AttrComponent = "component"
	AttrProperty  = "property"
)

// WithRunID returns a context carrying the verification run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithComponent returns a context carrying the component path being checked.
func WithComponent(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, componentKey, path)
}

// WithProperty returns a context carrying the property id being checked.
func WithProperty(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, propertyKey, id)
}

// RunID extracts the run id from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// Component extracts the component path from the context, or "" if absent.
func Component(ctx context.Context) string {
	v, _ := ctx.Value(componentKey).(string)
	return v
}

// Property extracts the property id from the context, or "" if absent.
func Property(ctx context.Context) string {
	v, _ := ctx.Value(propertyKey).(string)
	return v
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := RunID(ctx); v != "" {
		attrs = append(attrs, slog.String(AttrRunID, v))
	}
	if v := Component(ctx); v != "" {
		attrs = append(attrs, slog.String(AttrComponent, v))
	}
	if v := Property(ctx); v != "" {
		attrs = append(attrs, slog.String(AttrProperty, v))
	}
	return attrs
}

// LogWith returns a logger enriched with the correlation values in ctx.
// Only non-empty values are added.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and injects the run id, component
// and property from the context into every record, so callers only need
// logger.InfoContext(ctx, ...).
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner with correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config level name to an slog.Level. Unknown names
// yield info.
func ParseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}
