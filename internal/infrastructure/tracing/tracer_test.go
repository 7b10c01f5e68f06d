package tracing

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newRecorded returns a tracer whose ended spans land in the recorder.
func newRecorded(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &Tracer{tracer: tp.Tracer(TracerName), provider: tp}, sr
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNew_DisabledRecordsNothing(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), {Enabled: true, ExporterType: ExporterNone}, {Enabled: true}} {
		tr, err := New(context.Background(), cfg)
		if err != nil {
			t.Fatalf("New(%+v) error = %v", cfg, err)
		}
		if tr.Recording() {
			t.Errorf("New(%+v) is recording", cfg)
		}
		_, span := tr.StartDrain(context.Background(), "d", "manual")
		if span.Context().IsSampled() {
			t.Error("disabled tracer sampled a span")
		}
		span.End(nil)
		if err := tr.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}
}

func TestNew_UnsupportedExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, ExporterType: "zipkin"})
	if err == nil || !strings.Contains(err.Error(), "zipkin") {
		t.Errorf("error = %v", err)
	}
}

func TestNew_StdoutExporterFlushesOnShutdown(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}

	tr, err := New(ctx, Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "ppesync-test",
		Environment:  "test",
		SampleRate:   1,
		Output:       buf,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !tr.Recording() {
		t.Fatal("stdout tracer is not recording")
	}

	_, span := tr.StartDrain(ctx, "drain-1", "reconnect")
	span.End(nil)

	if err := tr.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	for _, want := range []string{"sync.drain", "drain-1", "ppesync-test"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestSpans_NestingAndAttributes(t *testing.T) {
	tr, sr := newRecorded(t)
	ctx := context.Background()

	ctx, drain := tr.StartDrain(ctx, "drain-1", "periodic")
	actx, act := tr.StartAction(ctx, "act-1", "update_ppe", 2)
	_, remote := tr.StartRemote(actx, "rest", "update", "ppe_items")

	remote.Set("remote.status_code", 503)
	remote.End(errors.New("service unavailable"))
	act.Set("action.status", "pending")
	act.End(errors.New("service unavailable"))
	drain.Set("drain.pending", 1)
	drain.Event("retry scheduled")
	drain.End(nil)

	ended := sr.Ended()
	if len(ended) != 3 {
		t.Fatalf("ended %d spans, want 3", len(ended))
	}
	rs, as, ds := ended[0], ended[1], ended[2]

	if rs.Name() != "remote.update" || rs.SpanKind() != trace.SpanKindClient {
		t.Errorf("remote span = %s/%v", rs.Name(), rs.SpanKind())
	}
	if rs.Parent().SpanID() != as.SpanContext().SpanID() || as.Parent().SpanID() != ds.SpanContext().SpanID() {
		t.Error("spans are not nested drain > action > remote")
	}

	if got := attrs(rs)["remote.status_code"].AsInt64(); got != 503 {
		t.Errorf("remote.status_code = %d", got)
	}
	if got := attrs(as)["action.attempt"].AsInt64(); got != 2 {
		t.Errorf("action.attempt = %d", got)
	}
	if got := attrs(ds)["drain.trigger"].AsString(); got != "periodic" {
		t.Errorf("drain.trigger = %q", got)
	}

	if rs.Status().Code != codes.Error || len(rs.Events()) == 0 {
		t.Errorf("remote status = %+v, events = %d", rs.Status(), len(rs.Events()))
	}
	if ds.Status().Code != codes.Ok {
		t.Errorf("drain status = %+v", ds.Status())
	}
	if len(ds.Events()) != 1 || ds.Events()[0].Name != "retry scheduled" {
		t.Errorf("drain events = %+v", ds.Events())
	}
}

func TestSpan_SetTypes(t *testing.T) {
	tr, sr := newRecorded(t)
	_, span := tr.StartDrain(context.Background(), "d", "manual")

	span.Set("s", "x")
	span.Set("b", true)
	span.Set("i", 3)
	span.Set("i64", int64(4))
	span.Set("f", 0.5)
	span.Set("other", []int{1, 2})
	span.End(nil)

	got := attrs(sr.Ended()[0])
	if got["s"].AsString() != "x" || !got["b"].AsBool() || got["i"].AsInt64() != 3 ||
		got["i64"].AsInt64() != 4 || got["f"].AsFloat64() != 0.5 || got["other"].AsString() != "[1 2]" {
		t.Errorf("attributes = %v", got)
	}
}

func TestInjectHTTP(t *testing.T) {
	h := http.Header{}
	InjectHTTP(context.Background(), h)
	if h.Get("traceparent") != "" {
		t.Errorf("traceparent without span = %q", h.Get("traceparent"))
	}

	tr, _ := newRecorded(t)
	ctx, span := tr.StartRemote(context.Background(), "rest", "insert", "inspections")
	defer span.End(nil)

	InjectHTTP(ctx, h)
	tp := h.Get("traceparent")
	if !strings.Contains(tp, span.Context().TraceID().String()) || !strings.HasSuffix(tp, "-01") {
		t.Errorf("traceparent = %q", tp)
	}
}
