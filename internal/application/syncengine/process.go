package syncengine

import (
	"context"
	"time"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// outcome is what processAction did with one action.
type outcome int

const (
	outcomeReplayed outcome = iota
	outcomeRetry            // replay failed, action stays pending
	outcomeFailed           // replay failed on the last allowed attempt
	outcomeSkipped          // action vanished or left pending before replay
)

// processAction replays one action and records the outcome in the store.
// A non-nil error means the store could not be read or written and the drain
// should stop.
func (e *Engine) processAction(ctx context.Context, id string) (outcome, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return outcomeSkipped, err
	}
	if a == nil || a.Status != action.StatusPending {
		e.logger.DebugContext(ctx, "action no longer pending, skipping", "action_id", id)
		return outcomeSkipped, nil
	}

	attempt := a.NextAttempt()
	ctx = logging.WithAction(ctx, a.ID, string(a.Type))
	ctx = ports.WithIdempotencyKey(ctx, a.ID)
	ctx, span := e.tracer.StartAction(ctx, a.ID, string(a.Type), attempt)

	replay, known := e.handlers.Lookup(a.Type)
	if !known {
		e.logger.DebugContext(ctx, "no dedicated handler, using generic call")
	}

	start := e.now()
	replayErr := replay(ctx, e.remote, a)
	if replayErr == nil {
		if err := e.store.Update(ctx, a.ID, action.Completed()); err != nil {
			span.End(err)
			return outcomeSkipped, err
		}
		logging.LogActionReplayed(ctx, e.logger, attempt, time.Since(start))
		span.Set("action.status", string(action.StatusCompleted))
		span.End(nil)
		return outcomeReplayed, nil
	}

	update := action.Retry(attempt, replayErr.Error())
	status, out := action.StatusPending, outcomeRetry
	if attempt >= e.cfg.MaxRetryAttempts {
		update = action.Failed(attempt, replayErr.Error())
		status, out = action.StatusFailed, outcomeFailed
	}
	logging.LogActionFailed(ctx, e.logger, attempt, e.cfg.MaxRetryAttempts, replayErr)

	if err := e.store.Update(ctx, a.ID, update); err != nil {
		span.End(err)
		return outcomeSkipped, err
	}
	span.Set("action.status", string(status))
	span.End(replayErr)
	return out, nil
}
