package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// Ensure MemoryStore implements ports.ActionStorePort.
var _ ports.ActionStorePort = (*MemoryStore)(nil)

// MemoryStore is an in-memory ports.ActionStorePort with failure injection.
// It keeps every update applied so tests can inspect intermediate states.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[string]*action.QueuedAction
	order   []string
	seq     int
	history map[string][]action.QueuedAction

	// FailOn makes the named operation ("Enqueue", "Get", "Update",
	// "ListPending", "ClearCompleted", "Counts", ...) return ErrStoreUnavailable.
	FailOn map[string]bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions: make(map[string]*action.QueuedAction),
		history: make(map[string][]action.QueuedAction),
		FailOn:  make(map[string]bool),
	}
}

// SetFailure toggles failure injection for op.
func (s *MemoryStore) SetFailure(op string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailOn[op] = fail
}

func (s *MemoryStore) failLocked(op string) error {
	if s.FailOn[op] {
		return domainErrors.Storage(op, fmt.Errorf("injected failure"))
	}
	return nil
}

// Initialize implements ports.ActionStorePort.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked("Initialize")
}

// Enqueue implements ports.ActionStorePort. IDs are sequential ("act-1", "act-2", ...).
func (s *MemoryStore) Enqueue(ctx context.Context, n action.NewAction) (*action.QueuedAction, error) {
	if err := n.Normalize(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("Enqueue"); err != nil {
		return nil, err
	}

	s.seq++
	now := time.Now()
	a := &action.QueuedAction{
		ID:        fmt.Sprintf("act-%d", s.seq),
		Type:      n.Type,
		Data:      n.Data,
		Metadata:  n.Metadata,
		Status:    action.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.actions[a.ID] = a
	s.order = append(s.order, a.ID)
	s.history[a.ID] = append(s.history[a.ID], *a)

	out := *a
	return &out, nil
}

// Get implements ports.ActionStorePort.
func (s *MemoryStore) Get(ctx context.Context, id string) (*action.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("Get"); err != nil {
		return nil, err
	}
	a, ok := s.actions[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

// Update implements ports.ActionStorePort.
func (s *MemoryStore) Update(ctx context.Context, id string, u action.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("Update"); err != nil {
		return err
	}
	a, ok := s.actions[id]
	if !ok {
		return domainErrors.NewError(domainErrors.CodeNotFound, "update "+id, domainErrors.ErrActionNotFound)
	}
	u.Apply(a)
	a.UpdatedAt = time.Now()
	s.history[id] = append(s.history[id], *a)
	return nil
}

// ListPending implements ports.ActionStorePort.
func (s *MemoryStore) ListPending(ctx context.Context) ([]*action.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("ListPending"); err != nil {
		return nil, err
	}
	return s.filterLocked(func(a *action.QueuedAction) bool { return a.Status.IsOutstanding() }), nil
}

// ListByStatus implements ports.ActionStorePort.
func (s *MemoryStore) ListByStatus(ctx context.Context, status action.Status) ([]*action.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("ListByStatus"); err != nil {
		return nil, err
	}
	return s.filterLocked(func(a *action.QueuedAction) bool { return a.Status == status }), nil
}

// ClearCompleted implements ports.ActionStorePort.
func (s *MemoryStore) ClearCompleted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("ClearCompleted"); err != nil {
		return 0, err
	}
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		if s.actions[id].Status == action.StatusCompleted {
			delete(s.actions, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

// ResetFailed implements ports.ActionStorePort.
func (s *MemoryStore) ResetFailed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("ResetFailed"); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range s.order {
		a := s.actions[id]
		if a.Status == action.StatusFailed {
			action.Reset().Apply(a)
			s.history[id] = append(s.history[id], *a)
			n++
		}
	}
	return n, nil
}

// Counts implements ports.ActionStorePort.
func (s *MemoryStore) Counts(ctx context.Context) (action.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked("Counts"); err != nil {
		return action.Counts{}, err
	}
	var c action.Counts
	for _, a := range s.actions {
		switch a.Status {
		case action.StatusPending:
			c.Pending++
		case action.StatusFailed:
			c.Failed++
		case action.StatusCompleted:
			c.Completed++
		}
	}
	return c, nil
}

// Close implements ports.ActionStorePort.
func (s *MemoryStore) Close() error {
	return nil
}

// History returns every state the action has been stored in, oldest first.
// It survives ClearCompleted.
func (s *MemoryStore) History(id string) []action.QueuedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]action.QueuedAction(nil), s.history[id]...)
}

// Len returns the number of stored actions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

func (s *MemoryStore) filterLocked(keep func(*action.QueuedAction) bool) []*action.QueuedAction {
	var out []*action.QueuedAction
	for _, id := range s.order {
		if a := s.actions[id]; keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	return out
}
