package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/tracing"
)

// mockBackend is a test implementation of ports.RemoteServicePort.
type mockBackend struct {
	name    string
	pingErr error
	callErr error
	calls   []string
	closed  bool
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Insert(ctx context.Context, table string, record json.RawMessage) error {
	m.calls = append(m.calls, "insert:"+table)
	return m.callErr
}

func (m *mockBackend) Update(ctx context.Context, table string, match ports.Match, patch json.RawMessage) error {
	m.calls = append(m.calls, "update:"+table)
	return m.callErr
}

func (m *mockBackend) Delete(ctx context.Context, table string, match ports.Match) error {
	m.calls = append(m.calls, "delete:"+table)
	return m.callErr
}

func (m *mockBackend) Call(ctx context.Context, procedure string, payload json.RawMessage) error {
	m.calls = append(m.calls, "call:"+procedure)
	return m.callErr
}

func (m *mockBackend) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockBackend) Close() error {
	m.closed = true
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
	if err := r.Register(&mockBackend{}); err == nil {
		t.Error("Register with empty name should fail")
	}

	restBackend := &mockBackend{name: "rest"}
	pg := &mockBackend{name: "postgres"}
	if err := r.Register(restBackend); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(pg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if r.Get("rest") != restBackend {
		t.Error("Get(rest) returned wrong backend")
	}
	if r.Get("missing") != nil {
		t.Error("Get(missing) should be nil")
	}

	names := r.List()
	if len(names) != 2 || names[0] != "rest" || names[1] != "postgres" {
		t.Errorf("List() = %v", names)
	}

	// Re-registering replaces without changing order.
	replacement := &mockBackend{name: "rest"}
	r.Register(replacement)
	if len(r.List()) != 2 || r.Get("rest") != replacement || r.List()[0] != "rest" {
		t.Error("re-registration should replace in place")
	}
}

func TestRegistry_GetRequired(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetRequired("rest")
	if !errors.Is(err, domainErrors.ErrBackendNotFound) {
		t.Errorf("GetRequired() error = %v, want ErrBackendNotFound", err)
	}
}

func TestRegistry_Probe(t *testing.T) {
	r := NewRegistry()
	if got := r.Probe(context.Background()); len(got) != 0 {
		t.Errorf("Probe() on empty registry = %v", got)
	}

	r.Register(&mockBackend{name: "rest", pingErr: errors.New("down")})
	r.Register(&mockBackend{name: "postgres"})
	for i := range 6 {
		r.Register(&mockBackend{name: fmt.Sprintf("extra-%d", i)})
	}

	got := r.Probe(context.Background())
	if len(got) != 8 {
		t.Fatalf("Probe() returned %d results", len(got))
	}
	if got[0].Name != "rest" || got[0].Online || got[0].Error != "down" {
		t.Errorf("rest = %+v", got[0])
	}
	if got[1].Name != "postgres" || !got[1].Online || got[1].Error != "" {
		t.Errorf("postgres = %+v", got[1])
	}
	if got[7].Name != "extra-5" {
		t.Errorf("results out of order: %+v", got)
	}
}

type failingCloser struct{ mockBackend }

func (f *failingCloser) Close() error { return errors.New("stuck") }

func TestRegistry_CloseJoinsErrors(t *testing.T) {
	r := NewRegistry()
	ok := &mockBackend{name: "rest"}
	r.Register(ok)
	r.Register(&failingCloser{mockBackend{name: "postgres"}})

	err := r.Close()
	if err == nil || !strings.Contains(err.Error(), "close postgres: stuck") {
		t.Errorf("Close() error = %v", err)
	}
	if !ok.closed {
		t.Error("healthy backend was not closed")
	}
}

func TestRegistry_CloseThroughInstrumentation(t *testing.T) {
	inner := &mockBackend{name: "postgres"}
	r := NewRegistry()
	r.Register(Instrument(inner, nil, logging.Nop()))

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !inner.closed {
		t.Error("wrapped backend was not closed")
	}
}

func TestInstrumented_DelegatesAndTraces(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterStdout,
		ServiceName:  "test",
		SampleRate:   1,
		Output:       buf,
	})
	if err != nil {
		t.Fatalf("tracing.New() error = %v", err)
	}

	inner := &mockBackend{name: "rest"}
	backend := Instrument(inner, tracer, logging.Nop())

	backend.Insert(ctx, "inspections", json.RawMessage(`{}`))
	backend.Update(ctx, "ppe_items", ports.Match{"id": "1"}, json.RawMessage(`{}`))
	backend.Delete(ctx, "notifications", ports.Match{"id": "1"})
	backend.Call(ctx, "custom", json.RawMessage(`{}`))

	want := []string{"insert:inspections", "update:ppe_items", "delete:notifications", "call:custom"}
	if strings.Join(inner.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", inner.calls, want)
	}
	if backend.Name() != "rest" || backend.Unwrap() != inner {
		t.Error("Name/Unwrap should expose the wrapped backend")
	}

	tracer.Shutdown(ctx)
	for _, name := range []string{"remote.insert", "remote.update", "remote.delete", "remote.call"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("missing %s span", name)
		}
	}
}

func TestInstrumented_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	backend := Instrument(&mockBackend{name: "rest", callErr: boom}, nil, logging.Nop())

	if err := backend.Insert(context.Background(), "t", nil); !errors.Is(err, boom) {
		t.Errorf("Insert() error = %v, want boom", err)
	}
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "status" }
func (e statusErr) HTTPStatus() int { return e.code }

func TestStatusCode(t *testing.T) {
	if _, ok := StatusCode(nil); ok {
		t.Error("nil error should have no status")
	}
	if _, ok := StatusCode(errors.New("plain")); ok {
		t.Error("plain error should have no status")
	}
	wrapped := errors.Join(errors.New("context"), statusErr{code: 429})
	if code, ok := StatusCode(wrapped); !ok || code != 429 {
		t.Errorf("StatusCode() = %d, %v", code, ok)
	}
}
