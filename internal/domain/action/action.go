// Package action defines the domain model for mutations queued while offline.
package action

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// Status represents the lifecycle state of a queued action.
type Status string

const (
	StatusPending   Status = "pending"   // Waiting for (another) replay attempt
	StatusCompleted Status = "completed" // Replayed successfully, awaiting cleanup
	StatusFailed    Status = "failed"    // Retry budget exhausted
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsOutstanding reports whether the action still counts as unsynced work.
// Failed actions are outstanding: they are visible to the user until retried
// or resolved, even though automatic drains skip them.
func (s Status) IsOutstanding() bool {
	return s == StatusPending || s == StatusFailed
}

// Type tags the kind of mutation. The set is open-ended.
type Type string

// Known mutation types.
const (
	TypeCreateInspection       Type = "create_inspection"
	TypeUpdatePPE              Type = "update_ppe"
	TypeAddNotification        Type = "add_notification"
	TypeUpdateNotification     Type = "update_notification"
	TypeMarkAllRead            Type = "mark_all_read"
	TypeDeleteNotification     Type = "delete_notification"
	TypeDeleteAllNotifications Type = "delete_all_notifications"
)

// KnownTypes lists the mutation types with dedicated replay handlers.
func KnownTypes() []Type {
	return []Type{
		TypeCreateInspection,
		TypeUpdatePPE,
		TypeAddNotification,
		TypeUpdateNotification,
		TypeMarkAllRead,
		TypeDeleteNotification,
		TypeDeleteAllNotifications,
	}
}

// IsKnown reports whether t has a dedicated replay handler.
func (t Type) IsKnown() bool {
	for _, k := range KnownTypes() {
		if k == t {
			return true
		}
	}
	return false
}

// QueuedAction is a locally persisted mutation awaiting replay against the remote service.
type QueuedAction struct {
	ID         string          // Assigned at creation, immutable
	Type       Type            // Mutation kind
	Data       json.RawMessage // Mutation arguments
	Metadata   json.RawMessage // Optional auxiliary data, nil when absent
	Status     Status          // Lifecycle state
	RetryCount int             // Failed replay attempts so far
	LastError  string          // Last replay error, cleared on success
	CreatedAt  time.Time       // FIFO ordering key
	UpdatedAt  time.Time       // Last modification
}

// NextAttempt returns the attempt number the next replay will be.
func (a *QueuedAction) NextAttempt() int {
	return a.RetryCount + 1
}

// DecodeData unmarshals the action payload into v.
func (a *QueuedAction) DecodeData(v any) error {
	if len(a.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(a.Data, v)
}

// NewAction holds the caller-supplied fields of an action about to be queued.
type NewAction struct {
	Type     Type
	Data     json.RawMessage
	Metadata json.RawMessage
}

// Normalize validates the action and fills defaults. Empty data becomes "{}".
func (n *NewAction) Normalize() error {
	n.Type = Type(strings.TrimSpace(string(n.Type)))
	if n.Type == "" {
		return domainErrors.NewError(domainErrors.CodeValidation, "cannot queue action", domainErrors.ErrActionTypeMissing)
	}

	data := bytes.TrimSpace(n.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if !json.Valid(data) {
		return domainErrors.NewError(domainErrors.CodeValidation, "cannot queue action data", domainErrors.ErrInvalidPayload)
	}
	n.Data = data

	meta := bytes.TrimSpace(n.Metadata)
	if len(meta) == 0 || bytes.Equal(meta, []byte("null")) {
		n.Metadata = nil
		return nil
	}
	if !json.Valid(meta) {
		return domainErrors.NewError(domainErrors.CodeValidation, "cannot queue action metadata", domainErrors.ErrInvalidPayload)
	}
	n.Metadata = meta
	return nil
}

// Update is a partial update merged into a stored action. Nil fields are left unchanged.
type Update struct {
	Status     *Status
	RetryCount *int
	LastError  *string
}

// Completed returns the update applied after a successful replay.
func Completed() Update {
	status := StatusCompleted
	empty := ""
	return Update{Status: &status, LastError: &empty}
}

// Retry returns the update applied after a retryable failure.
func Retry(attempt int, lastErr string) Update {
	status := StatusPending
	return Update{Status: &status, RetryCount: &attempt, LastError: &lastErr}
}

// Failed returns the update applied once the retry budget is spent.
func Failed(attempt int, lastErr string) Update {
	status := StatusFailed
	return Update{Status: &status, RetryCount: &attempt, LastError: &lastErr}
}

// Reset returns the update applied when a user retries a failed action.
func Reset() Update {
	status := StatusPending
	zero := 0
	empty := ""
	return Update{Status: &status, RetryCount: &zero, LastError: &empty}
}

// Apply merges u into a.
func (u Update) Apply(a *QueuedAction) {
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.RetryCount != nil {
		a.RetryCount = *u.RetryCount
	}
	if u.LastError != nil {
		a.LastError = *u.LastError
	}
}

// Counts summarizes actions by status.
type Counts struct {
	Pending   int
	Failed    int
	Completed int
}

// Outstanding returns the number of actions that still need syncing.
func (c Counts) Outstanding() int {
	return c.Pending + c.Failed
}
