package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func newJSON(level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Config{Level: level, Format: FormatJSON, Output: buf}), buf
}

// lastRecord decodes the last JSON line in buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("not JSON: %q: %v", buf.String(), err)
	}
	return m
}

func TestNew_Formats(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(Config{Level: LevelInfo, Format: FormatText, Output: buf}).Info("hello")
		if !strings.Contains(buf.String(), "level=INFO") || !strings.Contains(buf.String(), "msg=hello") {
			t.Errorf("text output = %q", buf.String())
		}
	})

	t.Run("json with time format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		New(Config{Level: LevelInfo, Format: FormatJSON, Output: buf, TimeFormat: time.DateOnly}).Info("hello")
		m := lastRecord(t, buf)
		if m["level"] != "INFO" || m["msg"] != "hello" {
			t.Errorf("record = %v", m)
		}
		if _, err := time.Parse(time.DateOnly, m["time"].(string)); err != nil {
			t.Errorf("time = %v: %v", m["time"], err)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[Level]string{
		LevelDebug: "DEBUG",
		"DEBUG":    "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		"warning":  "WARN",
		LevelError: "ERROR",
		"":         "INFO",
		"verbose":  "INFO",
	}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level Level
		log   func(*Logger)
		want  bool
	}{
		{LevelDebug, func(l *Logger) { l.Debug("m") }, true},
		{LevelInfo, func(l *Logger) { l.Debug("m") }, false},
		{LevelInfo, func(l *Logger) { l.Info("m") }, true},
		{LevelError, func(l *Logger) { l.Warn("m") }, false},
		{LevelError, func(l *Logger) { l.ErrorContext(context.Background(), "m") }, true},
	}
	for i, tt := range tests {
		l, buf := newJSON(tt.level)
		tt.log(l)
		if got := buf.Len() > 0; got != tt.want {
			t.Errorf("case %d: wrote = %v, want %v", i, got, tt.want)
		}
	}
}

func TestSetLevel_SharedWithChildren(t *testing.T) {
	l, buf := newJSON(LevelInfo)
	child := l.With("component", "monitor").WithGroup("probe")

	if child.Enabled(LevelDebug) {
		t.Fatal("debug enabled at info level")
	}
	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}

	l.SetLevel(LevelDebug)
	child.Debug("visible", "ok", true)

	m := lastRecord(t, buf)
	if m["component"] != "monitor" {
		t.Errorf("component = %v", m["component"])
	}
	probe, _ := m["probe"].(map[string]any)
	if probe["ok"] != true {
		t.Errorf("probe group = %v", m["probe"])
	}
}

func TestContextAttributes(t *testing.T) {
	l, buf := newJSON(LevelDebug)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithDrainID(ctx, "drain-2")
	ctx = WithAction(ctx, "act-3", "update_ppe")
	ctx = WithBackend(ctx, "rest")

	l.InfoContext(ctx, "replaying")

	m := lastRecord(t, buf)
	want := map[string]string{
		"correlation_id": "corr-1",
		"drain_id":       "drain-2",
		"action_id":      "act-3",
		"action_type":    "update_ppe",
		"backend":        "rest",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %s", k, m[k], v)
		}
	}
	if _, ok := m["trace_id"]; ok {
		t.Error("trace_id set without a span")
	}

	if CorrelationID(ctx) != "corr-1" || DrainID(ctx) != "drain-2" {
		t.Errorf("extracted ids = %q, %q", CorrelationID(ctx), DrainID(ctx))
	}
	if CorrelationID(context.Background()) != "" || DrainID(context.Background()) != "" {
		t.Error("empty context returned ids")
	}
}

func TestContextAttributes_TraceIDs(t *testing.T) {
	l, buf := newJSON(LevelInfo)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.WarnContext(ctx, "slow backend")

	m := lastRecord(t, buf)
	if m["trace_id"] != sc.TraceID().String() {
		t.Errorf("trace_id = %v", m["trace_id"])
	}
	if m["span_id"] != "0102030405060708" {
		t.Errorf("span_id = %v", m["span_id"])
	}
}

func TestSyncEvents(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func(*Logger)
		level string
		msg   string
		attrs map[string]any
	}{
		{
			name:  "drain start",
			log:   func(l *Logger) { LogDrainStart(ctx, l, 3) },
			level: "INFO", msg: "drain started",
			attrs: map[string]any{"pending": float64(3)},
		},
		{
			name:  "drain complete",
			log:   func(l *Logger) { LogDrainComplete(ctx, l, 2, 1, 1, 5*time.Second) },
			level: "INFO", msg: "drain completed",
			attrs: map[string]any{"duration_ms": float64(5000), "remaining": float64(1)},
		},
		{
			name:  "drain aborted",
			log:   func(l *Logger) { LogDrainAborted(ctx, l, errors.New("disk full"), time.Second) },
			level: "ERROR", msg: "drain aborted",
			attrs: map[string]any{"error": "disk full", "retry_in_ms": float64(1000)},
		},
		{
			name:  "replayed",
			log:   func(l *Logger) { LogActionReplayed(ctx, l, 2, 40*time.Millisecond) },
			level: "DEBUG", msg: "action replayed",
			attrs: map[string]any{"attempt": float64(2), "latency_ms": float64(40)},
		},
		{
			name:  "failed retryable",
			log:   func(l *Logger) { LogActionFailed(ctx, l, 1, 3, errors.New("timeout")) },
			level: "WARN", msg: "action replay failed",
			attrs: map[string]any{"error": "timeout"},
		},
		{
			name:  "failed permanently",
			log:   func(l *Logger) { LogActionFailed(ctx, l, 3, 3, errors.New("timeout")) },
			level: "ERROR", msg: "action failed permanently",
			attrs: map[string]any{"max_attempts": float64(3)},
		},
		{
			name:  "queued",
			log:   func(l *Logger) { LogActionQueued(ctx, l, "act-1", "create_inspection") },
			level: "INFO", msg: "action queued",
			attrs: map[string]any{"action_id": "act-1", "action_type": "create_inspection"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newJSON(LevelDebug)
			tt.log(l)

			m := lastRecord(t, buf)
			if m["level"] != tt.level || m["msg"] != tt.msg {
				t.Errorf("level/msg = %v/%v, want %s/%s", m["level"], m["msg"], tt.level, tt.msg)
			}
			for k, v := range tt.attrs {
				if m[k] != v {
					t.Errorf("%s = %v, want %v", k, m[k], v)
				}
			}
		})
	}
}

func TestNopAndDefault(t *testing.T) {
	Nop().ErrorContext(WithDrainID(context.Background(), "d"), "discarded")

	if Default() == nil || Default() != Default() {
		t.Error("Default() should return one shared logger")
	}
}
