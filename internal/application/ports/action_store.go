// Package ports defines the application layer port interfaces following hexagonal architecture.
// Ports are abstractions that allow the application core to interact with external systems
// (adapters) without knowing their implementation details.
package ports

import (
	"context"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
)

// -----------------------------------------------------------------------------
// Durable Action Store Port
// -----------------------------------------------------------------------------

// ActionStorePort defines the interface for persisting queued offline actions.
// Implementations must survive process restarts and keep each operation atomic
// per record; the sync engine relies on no other locking.
//
// Every method returns an error matching domain errors.ErrStoreUnavailable when the
// underlying storage cannot be reached. Callers treat that as "could not determine
// pending work" rather than as a failure of any particular action.
type ActionStorePort interface {
	// Initialize prepares the underlying storage. It is idempotent and may be
	// called any number of times.
	Initialize(ctx context.Context) error

	// Enqueue persists a new action with a fresh ID, status pending and
	// RetryCount 0, and returns the stored record.
	Enqueue(ctx context.Context, n action.NewAction) (*action.QueuedAction, error)

	// Get retrieves an action by ID. Returns nil and no error when the action
	// does not exist.
	Get(ctx context.Context, id string) (*action.QueuedAction, error)

	// Update merges the non-nil fields of u into the stored action.
	// Returns ErrActionNotFound when the action does not exist.
	Update(ctx context.Context, id string, u action.Update) error

	// ListPending returns all actions with status pending or failed,
	// ordered by creation time (oldest first).
	ListPending(ctx context.Context) ([]*action.QueuedAction, error)

	// ListByStatus returns all actions with the given status in creation order.
	ListByStatus(ctx context.Context, status action.Status) ([]*action.QueuedAction, error)

	// ClearCompleted deletes every completed action and returns how many were removed.
	// Calling it when nothing is completed is a no-op.
	ClearCompleted(ctx context.Context) (int, error)

	// ResetFailed moves every failed action back to pending with a zero retry count.
	// Returns the number of actions reset.
	ResetFailed(ctx context.Context) (int, error)

	// Counts returns the number of actions per status.
	Counts(ctx context.Context) (action.Counts, error)

	// Close releases the underlying storage.
	Close() error
}
