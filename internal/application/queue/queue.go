// Package queue is the entry point application code uses to record a
// mutation for later (or immediate) replay.
package queue

import (
	"context"
	"encoding/json"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/connectivity"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/syncengine"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// Queue persists actions and nudges the sync engine when online.
type Queue struct {
	store   ports.ActionStorePort
	engine  *syncengine.Engine
	monitor *connectivity.Monitor
	logger  *logging.Logger
}

// New creates a Queue.
func New(store ports.ActionStorePort, engine *syncengine.Engine, monitor *connectivity.Monitor, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		store:   store,
		engine:  engine,
		monitor: monitor,
		logger:  logger.With("component", "queue"),
	}
}

// QueueAction records a mutation of the given type. data and metadata are
// marshaled to JSON; json.RawMessage values are stored as is. It returns false
// when the action could not be persisted; the failure is logged and never
// returned to the caller.
func (q *Queue) QueueAction(ctx context.Context, actionType action.Type, data any, metadata any) bool {
	_, ok := q.Enqueue(ctx, actionType, data, metadata)
	return ok
}

// Enqueue is QueueAction returning the stored record.
func (q *Queue) Enqueue(ctx context.Context, actionType action.Type, data any, metadata any) (*action.QueuedAction, bool) {
	rawData, err := toJSON(data)
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to encode action data", "action_type", actionType, "error", err)
		return nil, false
	}
	rawMeta, err := toJSON(metadata)
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to encode action metadata", "action_type", actionType, "error", err)
		return nil, false
	}

	stored, err := q.store.Enqueue(ctx, action.NewAction{
		Type:     actionType,
		Data:     rawData,
		Metadata: rawMeta,
	})
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to queue action", "action_type", actionType, "error", err)
		return nil, false
	}
	logging.LogActionQueued(ctx, q.logger, stored.ID, string(stored.Type))

	if _, err := q.engine.RefreshPendingCount(ctx); err != nil {
		q.logger.WarnContext(ctx, "failed to refresh pending count", "error", err)
	}

	if q.monitor.Online() && !q.engine.State().IsSyncing {
		q.engine.TriggerSync(q.engine.Config().TriggerDelay)
	}
	return stored, true
}

func toJSON(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	case []byte:
		return json.RawMessage(val), nil
	}
	return json.Marshal(v)
}
