// Package consumers implements the inspection and notification flows. Each
// mutation is written directly when online and queued for replay otherwise.
package consumers

import (
	"context"
	"encoding/json"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/syncengine"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// Outcome reports how a mutation was recorded.
type Outcome struct {
	Queued bool // True when the write was deferred to the action queue
}

// Queuer is the action queue entry point.
type Queuer interface {
	QueueAction(ctx context.Context, actionType action.Type, data any, metadata any) bool
}

// ConnectivitySource reports whether direct writes are worth attempting.
type ConnectivitySource interface {
	Online() bool
}

// Writer performs direct-or-queue writes. Direct writes go through the same
// replay handlers the sync engine uses, so both paths send identical requests.
type Writer struct {
	remote   ports.RemoteServicePort
	queue    Queuer
	online   ConnectivitySource
	handlers *syncengine.Handlers
	logger   *logging.Logger
}

// NewWriter creates a Writer. handlers defaults to syncengine.DefaultHandlers.
func NewWriter(remote ports.RemoteServicePort, queue Queuer, online ConnectivitySource, handlers *syncengine.Handlers, logger *logging.Logger) *Writer {
	if handlers == nil {
		handlers = syncengine.DefaultHandlers()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Writer{
		remote:   remote,
		queue:    queue,
		online:   online,
		handlers: handlers,
		logger:   logger.With("component", "consumers"),
	}
}

// Write records one mutation. It returns an error only when the mutation
// could neither be written nor queued.
func (w *Writer) Write(ctx context.Context, actionType action.Type, data any) (Outcome, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Outcome{}, domainErrors.NewError(domainErrors.CodeValidation, "encode "+string(actionType), domainErrors.ErrInvalidPayload)
	}

	if w.online.Online() {
		replay, _ := w.handlers.Lookup(actionType)
		err := replay(ctx, w.remote, &action.QueuedAction{Type: actionType, Data: raw})
		if err == nil {
			return Outcome{}, nil
		}
		if domainErrors.Is(err, domainErrors.ErrInvalidPayload) {
			return Outcome{}, err
		}
		w.logger.WarnContext(ctx, "direct write failed, queueing", "action_type", actionType, "error", err)
	}

	if !w.queue.QueueAction(ctx, actionType, json.RawMessage(raw), nil) {
		return Outcome{}, domainErrors.Storage("queue "+string(actionType), nil)
	}
	return Outcome{Queued: true}, nil
}
