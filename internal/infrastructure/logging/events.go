package logging

import (
	"context"
	"time"
)

// Sync lifecycle records. Message text is stable so log pipelines can match on it.

func LogDrainStart(ctx context.Context, logger *Logger, pending int) {
	logger.InfoContext(ctx, "drain started", "pending", pending)
}

func LogDrainComplete(ctx context.Context, logger *Logger, succeeded, failed, remaining int, duration time.Duration) {
	logger.InfoContext(ctx, "drain completed",
		"succeeded", succeeded,
		"failed", failed,
		"remaining", remaining,
		"duration_ms", duration.Milliseconds(),
	)
}

func LogDrainAborted(ctx context.Context, logger *Logger, err error, retryIn time.Duration) {
	logger.ErrorContext(ctx, "drain aborted", "error", err.Error(), "retry_in_ms", retryIn.Milliseconds())
}

func LogActionReplayed(ctx context.Context, logger *Logger, attempt int, latency time.Duration) {
	logger.DebugContext(ctx, "action replayed", "attempt", attempt, "latency_ms", latency.Milliseconds())
}

// LogActionFailed logs at error level once attempt reaches maxAttempts and
// the action will not be retried.
func LogActionFailed(ctx context.Context, logger *Logger, attempt, maxAttempts int, err error) {
	args := []any{"attempt", attempt, "max_attempts", maxAttempts, "error", err.Error()}
	if attempt >= maxAttempts {
		logger.ErrorContext(ctx, "action failed permanently", args...)
		return
	}
	logger.WarnContext(ctx, "action replay failed", args...)
}

// LogActionQueued is written before the action ID exists in any context.
func LogActionQueued(ctx context.Context, logger *Logger, id, actionType string) {
	logger.InfoContext(ctx, "action queued", "action_id", id, "action_type", actionType)
}
