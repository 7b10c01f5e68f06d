// Package bridge folds completion notices from an out-of-process background
// sync into the sync engine's state.
package bridge

import (
	"context"
	"fmt"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// Message discriminators accepted by the bridge.
const (
	TypeSyncCompleted       = "SYNC_COMPLETED"
	TypeReportSyncCompleted = "REPORT_SYNC_COMPLETED"
)

// Message is an inbound notice from the background sync runner.
type Message struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// IsCompletion reports whether m announces a finished background sync.
func (m Message) IsCompletion() bool {
	return m.Type == TypeSyncCompleted || m.Type == TypeReportSyncCompleted
}

// Applier receives completion notices.
type Applier interface {
	ApplyBackgroundCompletion(ctx context.Context) error
}

// Bridge is a one-way listener; senders get no acknowledgement.
type Bridge struct {
	applier  Applier
	notifier ports.NotifierPort
	logger   *logging.Logger
}

// New creates a Bridge. notifier may be nil.
func New(applier Applier, notifier ports.NotifierPort, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bridge{
		applier:  applier,
		notifier: notifier,
		logger:   logger.With("component", "bridge"),
	}
}

// Handle processes one message. Unknown discriminators return ErrUnknownMessage
// so sources can count them; they have no other effect.
func (b *Bridge) Handle(ctx context.Context, msg Message) error {
	if !msg.IsCompletion() {
		b.logger.DebugContext(ctx, "ignoring bridge message", "type", msg.Type)
		return domainErrors.NewError(domainErrors.CodeValidation,
			fmt.Sprintf("message type %q", msg.Type), domainErrors.ErrUnknownMessage)
	}

	if err := b.applier.ApplyBackgroundCompletion(ctx); err != nil {
		b.logger.WarnContext(ctx, "background completion applied with stale count", "error", err)
	}
	b.logger.InfoContext(ctx, "background sync completed", "type", msg.Type, "status", msg.Status, "tag", msg.Tag)

	if b.notifier != nil {
		b.notifier.Notify(ctx, ports.Event{
			Kind:    ports.EventBackgroundSynced,
			Level:   ports.LevelSuccess,
			Message: completionMessage(msg),
		})
	}
	return nil
}

func completionMessage(msg Message) string {
	subject := "Background sync"
	if msg.Type == TypeReportSyncCompleted {
		subject = "Report sync"
	}
	if msg.Status == "" {
		return subject + " completed"
	}
	return fmt.Sprintf("%s completed: %s", subject, msg.Status)
}
