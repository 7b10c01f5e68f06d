// Package tracing wraps OpenTelemetry for drain passes, action replays and
// remote requests. Spans go to stdout or an OTLP/HTTP collector.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation scope of ppesync spans.
	TracerName = "github.com/NocodeBuilds/ppe-inspector-sub000"

	instrumentationVersion = "0.3.0"
)

// ExporterType selects where spans are sent.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool
	ExporterType ExporterType
	OTLPEndpoint string // host:port of the collector
	ServiceName  string
	Environment  string
	SampleRate   float64   // 0 never samples, 1 always
	Output       io.Writer // stdout exporter destination
}

// DefaultConfig returns a disabled configuration.
func DefaultConfig() Config {
	return Config{
		ExporterType: ExporterNone,
		ServiceName:  "ppesync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer starts ppesync spans. A Tracer built from a disabled Config
// records nothing.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Default returns a tracer backed by the global OpenTelemetry provider.
func Default() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// New builds a tracer and, when enabled, registers its provider globally.
// Call Shutdown to flush buffered spans.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone || cfg.ExporterType == "" {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.ExporterType, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(instrumentationVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithTelemetrySDK(),
		resource.WithProcessRuntimeVersion(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagator)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(instrumentationVersion)),
		provider: provider,
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)
	case ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", cfg.ExporterType)
	}
}

// Recording reports whether spans from t are exported.
func (t *Tracer) Recording() bool {
	return t.provider != nil
}

// Shutdown flushes and stops the provider. It is a no-op for disabled tracers.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartDrain starts the span for one drain pass.
func (t *Tracer) StartDrain(ctx context.Context, drainID, trigger string) (context.Context, *Span) {
	return t.start(ctx, "sync.drain", trace.SpanKindInternal,
		attribute.String("drain.id", drainID),
		attribute.String("drain.trigger", trigger),
	)
}

// StartAction starts the span for one replay attempt of a queued action.
func (t *Tracer) StartAction(ctx context.Context, actionID, actionType string, attempt int) (context.Context, *Span) {
	return t.start(ctx, "sync.action", trace.SpanKindInternal,
		attribute.String("action.id", actionID),
		attribute.String("action.type", actionType),
		attribute.Int("action.attempt", attempt),
	)
}

// StartRemote starts the client span for a request to the remote record store.
func (t *Tracer) StartRemote(ctx context.Context, backend, operation, target string) (context.Context, *Span) {
	return t.start(ctx, "remote."+operation, trace.SpanKindClient,
		attribute.String("remote.backend", backend),
		attribute.String("remote.operation", operation),
		attribute.String("remote.target", target),
	)
}

func (t *Tracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}
