package ports

import (
	"context"
	"encoding/json"
)

// -----------------------------------------------------------------------------
// Remote Service Port
// -----------------------------------------------------------------------------

// Match selects remote records by column equality. All pairs must match.
type Match map[string]any

// RemoteServicePort is the generic record store the application writes to.
// Every call may fail transiently; callers decide whether to queue and retry.
// Implementations apply their own network timeout and must not retry internally,
// since the sync engine owns the retry budget.
type RemoteServicePort interface {
	// Name returns the backend's registry name.
	Name() string

	// Insert creates a record in table from a JSON object.
	Insert(ctx context.Context, table string, record json.RawMessage) error

	// Update patches every record in table that matches.
	Update(ctx context.Context, table string, match Match, patch json.RawMessage) error

	// Delete removes every record in table that matches.
	Delete(ctx context.Context, table string, match Match) error

	// Call invokes a named remote procedure with a JSON payload. It is the
	// generic path for mutation kinds without a dedicated table mapping.
	Call(ctx context.Context, procedure string, payload json.RawMessage) error

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ConnectivityProbePort answers "can we reach the network right now".
// The remote backend's Ping is the usual implementation.
type ConnectivityProbePort interface {
	Ping(ctx context.Context) error
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a client-generated key to ctx so that backends
// supporting deduplication can recognize a replayed write.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key attached with WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) string {
	if v, ok := ctx.Value(idempotencyKey{}).(string); ok {
		return v
	}
	return ""
}
