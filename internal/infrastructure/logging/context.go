package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	// CorrelationIDKey identifies one CLI invocation or inbound request.
	CorrelationIDKey contextKey = "correlation_id"
	// DrainIDKey identifies one drain pass.
	DrainIDKey    contextKey = "drain_id"
	ActionIDKey   contextKey = "action_id"
	ActionTypeKey contextKey = "action_type"
	BackendKey    contextKey = "backend"
)

var contextKeys = [...]contextKey{CorrelationIDKey, DrainIDKey, ActionIDKey, ActionTypeKey, BackendKey}

// contextHandler adds the identifiers stored in a record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, key := range contextKeys {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				r.AddAttrs(slog.String(string(key), v))
			}
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// WithCorrelationID stores a correlation ID in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithDrainID stores the current drain pass ID in ctx.
func WithDrainID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DrainIDKey, id)
}

// WithAction stores the queued action being replayed in ctx.
func WithAction(ctx context.Context, id, actionType string) context.Context {
	ctx = context.WithValue(ctx, ActionIDKey, id)
	return context.WithValue(ctx, ActionTypeKey, actionType)
}

// WithBackend stores the remote backend name in ctx.
func WithBackend(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, BackendKey, name)
}

func stringValue(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// CorrelationID returns the correlation ID stored in ctx, if any.
func CorrelationID(ctx context.Context) string { return stringValue(ctx, CorrelationIDKey) }

// DrainID returns the drain pass ID stored in ctx, if any.
func DrainID(ctx context.Context) string { return stringValue(ctx, DrainIDKey) }
