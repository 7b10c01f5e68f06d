package ports

import (
	"context"
	"time"
)

// EventKind names a user-visible transition.
type EventKind string

const (
	EventOffline          EventKind = "offline"           // Connectivity lost
	EventOnline           EventKind = "online"            // Connectivity restored
	EventSyncStarted      EventKind = "sync_started"      // Drain began
	EventSyncPartial      EventKind = "sync_partial"      // Drain finished with failures
	EventSyncCompleted    EventKind = "sync_completed"    // Drain finished with nothing left
	EventSyncRetrying     EventKind = "sync_retrying"     // Drain aborted, retry scheduled
	EventBackgroundSynced EventKind = "background_synced" // Out-of-process sync reported completion
)

// Level is the severity a presentation layer should use.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a progress signal surfaced to the user as a toast or banner.
type Event struct {
	Kind      EventKind
	Level     Level
	Message   string
	Pending   int // Actions about to be processed (sync_started)
	Succeeded int // Actions replayed in this pass
	Failed    int // Actions that failed in this pass
	At        time.Time
}

// NotifierPort receives progress events. Implementations must not block for long;
// they are called from the sync engine's goroutine.
type NotifierPort interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to NotifierPort.
type NotifierFunc func(ctx context.Context, event Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}
