package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
)

// ErrRemote is the error returned by injected remote failures.
var ErrRemote = errors.New("remote unavailable")

// RemoteCall records one request made to a RecordingRemote.
type RemoteCall struct {
	Op             string // insert, update, delete, call
	Target         string // Table or procedure
	Match          ports.Match
	Payload        json.RawMessage
	IdempotencyKey string
}

// Ensure RecordingRemote implements ports.RemoteServicePort.
var _ ports.RemoteServicePort = (*RecordingRemote)(nil)

// RecordingRemote is a ports.RemoteServicePort that records requests.
// Failures can be injected globally or for the first N calls.
type RecordingRemote struct {
	mu        sync.Mutex
	calls     []RemoteCall
	failNext  int
	failAll   bool
	pingErr   error
	BeforeOp  func(RemoteCall) // Optional hook run before each mutation
}

// NewRecordingRemote creates a remote that accepts every request.
func NewRecordingRemote() *RecordingRemote {
	return &RecordingRemote{}
}

// FailNext makes the next n mutations fail with ErrRemote.
func (r *RecordingRemote) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// FailAll makes every mutation fail with ErrRemote until reset.
func (r *RecordingRemote) FailAll(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = fail
}

// SetPingError sets the error returned by Ping.
func (r *RecordingRemote) SetPingError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}

// Calls returns a copy of the recorded requests.
func (r *RecordingRemote) Calls() []RemoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RemoteCall(nil), r.calls...)
}

// CallCount returns the number of recorded requests.
func (r *RecordingRemote) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Name implements ports.RemoteServicePort.
func (r *RecordingRemote) Name() string {
	return "recording"
}

// Insert implements ports.RemoteServicePort.
func (r *RecordingRemote) Insert(ctx context.Context, table string, record json.RawMessage) error {
	return r.record(ctx, RemoteCall{Op: "insert", Target: table, Payload: record})
}

// Update implements ports.RemoteServicePort.
func (r *RecordingRemote) Update(ctx context.Context, table string, match ports.Match, patch json.RawMessage) error {
	return r.record(ctx, RemoteCall{Op: "update", Target: table, Match: match, Payload: patch})
}

// Delete implements ports.RemoteServicePort.
func (r *RecordingRemote) Delete(ctx context.Context, table string, match ports.Match) error {
	return r.record(ctx, RemoteCall{Op: "delete", Target: table, Match: match})
}

// Call implements ports.RemoteServicePort.
func (r *RecordingRemote) Call(ctx context.Context, procedure string, payload json.RawMessage) error {
	return r.record(ctx, RemoteCall{Op: "call", Target: procedure, Payload: payload})
}

// Ping implements ports.RemoteServicePort.
func (r *RecordingRemote) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

func (r *RecordingRemote) record(ctx context.Context, call RemoteCall) error {
	call.IdempotencyKey = ports.IdempotencyKey(ctx)

	r.mu.Lock()
	hook := r.BeforeOp
	r.calls = append(r.calls, call)
	fail := r.failAll
	if r.failNext > 0 {
		r.failNext--
		fail = true
	}
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if fail {
		return ErrRemote
	}
	return nil
}

// EventRecorder is a ports.NotifierPort that keeps every event.
type EventRecorder struct {
	mu     sync.Mutex
	events []ports.Event
}

// Notify implements ports.NotifierPort.
func (r *EventRecorder) Notify(ctx context.Context, e ports.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []ports.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *EventRecorder) Kinds() []ports.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ports.EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}
