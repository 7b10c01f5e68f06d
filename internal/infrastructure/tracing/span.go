package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span is an in-flight ppesync span.
type Span struct {
	span trace.Span
}

// Set records an attribute. Values other than string, bool, int, int64 and
// float64 are stored in their fmt form.
func (s *Span) Set(key string, value any) {
	var kv attribute.KeyValue
	switch v := value.(type) {
	case string:
		kv = attribute.String(key, v)
	case bool:
		kv = attribute.Bool(key, v)
	case int:
		kv = attribute.Int(key, v)
	case int64:
		kv = attribute.Int64(key, v)
	case float64:
		kv = attribute.Float64(key, v)
	default:
		kv = attribute.String(key, fmt.Sprint(v))
	}
	s.span.SetAttributes(kv)
}

// Event adds a timestamped event.
func (s *Span) Event(name string) {
	s.span.AddEvent(name)
}

// End finishes the span, marking it failed when err is non-nil.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// Context returns the span's identifiers.
func (s *Span) Context() trace.SpanContext {
	return s.span.SpanContext()
}

var propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

// InjectHTTP writes the W3C traceparent and baggage of ctx into h. Nothing is
// written when ctx carries no valid span.
func InjectHTTP(ctx context.Context, h http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(h))
}
