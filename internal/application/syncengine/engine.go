// Package syncengine drains the durable action queue against the remote
// backend, tracking retries and exposing sync state to the presentation layer.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/connectivity"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/tracing"
)

// Drain triggers, recorded on spans and logs.
const (
	TriggerManual     = "manual"
	TriggerQueued     = "queued"
	TriggerReconnect  = "reconnect"
	TriggerRetry      = "retry"
	TriggerPeriodic   = "periodic"
	TriggerBackground = "background"
)

// SkipReason explains why a drain request did no work.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipOffline SkipReason = "offline"
	SkipBusy    SkipReason = "busy"
	SkipClosed  SkipReason = "closed"
)

// Config contains configuration options for the engine.
type Config struct {
	MaxRetryAttempts int           // Attempts before an action is marked failed
	RetryDelay       time.Duration // Delay before re-draining after a partial pass
	TriggerDelay     time.Duration // Delay between a trigger and the drain it starts
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts: 3,
		RetryDelay:       5 * time.Second,
		TriggerDelay:     100 * time.Millisecond,
	}
}

// State is a snapshot of the observable sync state.
type State struct {
	IsSyncing           bool
	LastSyncedAt        time.Time // Zero until a pass leaves nothing outstanding
	PendingActionsCount int       // Pending plus failed
	LastSyncError       string
	RetryScheduled      bool
}

// DrainResult summarizes a single drain request.
type DrainResult struct {
	Attempted int
	Succeeded int
	Failed    int // Replays that failed in this pass
	Remaining int // Outstanding actions after the pass
	Skipped   SkipReason
	Err       error // Storage failure that aborted the pass
}

// Deps are the collaborators of the engine. Notifier, Logger and Tracer are optional.
type Deps struct {
	Store    ports.ActionStorePort
	Remote   ports.RemoteServicePort
	Monitor  *connectivity.Monitor
	Handlers *Handlers
	Notifier ports.NotifierPort
	Logger   *logging.Logger
	Tracer   *tracing.Tracer
}

// Engine owns the sync state. At most one drain runs at a time; requests
// made while a drain is running return immediately.
type Engine struct {
	cfg      Config
	store    ports.ActionStorePort
	remote   ports.RemoteServicePort
	monitor  *connectivity.Monitor
	handlers *Handlers
	notifier ports.NotifierPort
	logger   *logging.Logger
	tracer   *tracing.Tracer
	now      func() time.Time

	guard *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu           sync.Mutex
	state        State
	retryTimer   *time.Timer
	triggerTimer *time.Timer
	lastCatchUp  time.Time
	unsubscribe  func()
	closed       bool
}

// New creates an engine. Store, Remote and Monitor are required.
func New(cfg Config, deps Deps) *Engine {
	defaults := DefaultConfig()
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = defaults.MaxRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.TriggerDelay < 0 {
		cfg.TriggerDelay = 0
	}
	if deps.Handlers == nil {
		deps.Handlers = DefaultHandlers()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Default()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		store:    deps.Store,
		remote:   deps.Remote,
		monitor:  deps.Monitor,
		handlers: deps.Handlers,
		notifier: deps.Notifier,
		logger:   deps.Logger.With("component", "sync"),
		tracer:   deps.Tracer,
		now:      time.Now,
		guard:    semaphore.NewWeighted(1),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns a snapshot of the sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attach subscribes the engine to connectivity changes so that each
// offline-to-online transition starts exactly one catch-up drain.
func (e *Engine) Attach() {
	e.mu.Lock()
	if e.unsubscribe != nil || e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	unsub := e.monitor.Subscribe(e.onConnectivity)

	e.mu.Lock()
	e.unsubscribe = unsub
	e.mu.Unlock()

	// A reconnect that happened before Attach still deserves its catch-up.
	e.onConnectivity(e.monitor.Status())
}

func (e *Engine) onConnectivity(st connectivity.Status) {
	if !st.JustReconnected() {
		return
	}

	e.mu.Lock()
	if e.closed || !st.LastOnline.After(e.lastCatchUp) {
		e.mu.Unlock()
		return
	}
	e.lastCatchUp = st.LastOnline
	e.mu.Unlock()

	e.logger.Info("reconnected, scheduling catch-up sync")
	e.schedule(e.cfg.TriggerDelay, true, TriggerReconnect)
}

// SyncOfflineData runs one drain pass synchronously. Progress toasts are
// emitted only when showToast is set.
func (e *Engine) SyncOfflineData(ctx context.Context, showToast bool) DrainResult {
	return e.drain(ctx, showToast, TriggerManual)
}

// SyncWithTrigger runs one drain pass and records trigger on its span.
func (e *Engine) SyncWithTrigger(ctx context.Context, showToast bool, trigger string) DrainResult {
	return e.drain(ctx, showToast, trigger)
}

// TriggerSync requests a drain after delay without waiting for it. Requests
// made while one is already armed collapse into it.
func (e *Engine) TriggerSync(delay time.Duration) {
	e.schedule(delay, true, TriggerQueued)
}

func (e *Engine) schedule(delay time.Duration, showToast bool, trigger string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.triggerTimer != nil {
		return
	}

	e.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer e.wg.Done()
		e.mu.Lock()
		if e.triggerTimer == timer {
			e.triggerTimer = nil
		}
		e.mu.Unlock()
		e.drain(e.baseCtx, showToast, trigger)
	})
	e.triggerTimer = timer
}

// RefreshPendingCount re-reads the outstanding action count from the store.
func (e *Engine) RefreshPendingCount(ctx context.Context) (int, error) {
	counts, err := e.store.Counts(ctx)
	if err != nil {
		return 0, err
	}
	n := counts.Outstanding()

	e.mu.Lock()
	e.state.PendingActionsCount = n
	e.mu.Unlock()
	return n, nil
}

// ApplyBackgroundCompletion folds an out-of-process sync completion into the
// state without running a drain.
func (e *Engine) ApplyBackgroundCompletion(ctx context.Context) error {
	_, err := e.RefreshPendingCount(ctx)

	e.mu.Lock()
	e.state.LastSyncedAt = e.now()
	e.state.LastSyncError = ""
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "background sync completion applied")
	return err
}

// RetryFailed moves permanently failed actions back to pending and requests
// a drain. Returns the number of actions reset.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	n, err := e.store.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := e.RefreshPendingCount(ctx); err != nil {
		e.logger.WarnContext(ctx, "failed to refresh pending count", "error", err)
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "failed actions reset", "count", n)
		if e.monitor.Online() {
			e.TriggerSync(0)
		}
	}
	return n, nil
}

// Close stops timers, detaches from the monitor and waits for in-flight
// triggered drains.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsubscribe
	e.unsubscribe = nil
	if e.triggerTimer != nil && e.triggerTimer.Stop() {
		e.wg.Done()
	}
	e.triggerTimer = nil
	if e.retryTimer != nil && e.retryTimer.Stop() {
		e.wg.Done()
	}
	e.retryTimer = nil
	e.state.RetryScheduled = false
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) drain(ctx context.Context, showToast bool, trigger string) DrainResult {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return DrainResult{Skipped: SkipClosed}
	}
	if !e.monitor.Online() {
		return DrainResult{Skipped: SkipOffline}
	}
	if !e.guard.TryAcquire(1) {
		return DrainResult{Skipped: SkipBusy}
	}
	defer e.guard.Release(1)

	e.cancelRetry()

	drainID := uuid.NewString()
	ctx = logging.WithDrainID(ctx, drainID)
	ctx, span := e.tracer.StartDrain(ctx, drainID, trigger)
	start := e.now()

	if err := e.store.Initialize(ctx); err != nil {
		return e.abort(ctx, span, showToast, DrainResult{}, err)
	}
	outstanding, err := e.store.ListPending(ctx)
	if err != nil {
		return e.abort(ctx, span, showToast, DrainResult{}, err)
	}

	var runnable []*action.QueuedAction
	for _, a := range outstanding {
		if a.Status == action.StatusPending {
			runnable = append(runnable, a)
		}
	}
	span.Set("drain.pending", len(runnable))

	if len(runnable) == 0 {
		e.mu.Lock()
		e.state.PendingActionsCount = len(outstanding)
		e.state.LastSyncError = permanentFailureMessage(len(outstanding))
		if len(outstanding) == 0 {
			e.state.LastSyncedAt = e.now()
		}
		e.mu.Unlock()
		span.Set("drain.remaining", len(outstanding))
		span.End(nil)
		return DrainResult{Remaining: len(outstanding)}
	}

	e.setSyncing(true)
	defer e.setSyncing(false)

	logging.LogDrainStart(ctx, e.logger, len(runnable))
	if showToast {
		e.notify(ctx, ports.Event{
			Kind:    ports.EventSyncStarted,
			Level:   ports.LevelInfo,
			Message: fmt.Sprintf("Syncing %d offline changes...", len(runnable)),
			Pending: len(runnable),
		})
	}

	result := DrainResult{}
	retried := make(map[string]bool)
	for _, a := range runnable {
		if ctx.Err() != nil {
			break
		}
		out, err := e.processAction(ctx, a.ID)
		if err != nil {
			return e.abort(ctx, span, showToast, result, err)
		}
		if out == outcomeSkipped {
			continue
		}
		result.Attempted++
		switch out {
		case outcomeReplayed:
			result.Succeeded++
		case outcomeRetry:
			result.Failed++
			retried[a.ID] = true
		default:
			result.Failed++
		}
		if _, err := e.RefreshPendingCount(ctx); err != nil {
			e.logger.WarnContext(ctx, "failed to refresh pending count", "error", err)
		}
	}

	if _, err := e.store.ClearCompleted(ctx); err != nil {
		return e.abort(ctx, span, showToast, result, err)
	}

	remaining, err := e.store.ListPending(ctx)
	if err != nil {
		return e.abort(ctx, span, showToast, result, err)
	}
	result.Remaining = len(remaining)

	// Pending actions this pass never attempted were queued after it started.
	var retryable, fresh, permanent int
	for _, a := range remaining {
		switch {
		case a.Status != action.StatusPending:
			permanent++
		case retried[a.ID]:
			retryable++
		default:
			fresh++
		}
	}

	e.mu.Lock()
	e.state.PendingActionsCount = len(remaining)
	switch {
	case retryable > 0:
		e.state.LastSyncError = fmt.Sprintf("%d actions failed to sync. Will retry.", retryable)
	case permanent > 0:
		e.state.LastSyncError = permanentFailureMessage(permanent)
	case fresh > 0:
		e.state.LastSyncError = ""
	default:
		e.state.LastSyncedAt = e.now()
		e.state.LastSyncError = ""
	}
	e.mu.Unlock()

	if retryable+fresh > 0 {
		e.scheduleRetry()
	}

	logging.LogDrainComplete(ctx, e.logger, result.Succeeded, result.Failed, result.Remaining, e.now().Sub(start))
	span.Set("drain.succeeded", result.Succeeded)
	span.Set("drain.failed", result.Failed)
	span.Set("drain.remaining", result.Remaining)
	if retryable+fresh > 0 {
		span.Event("retry scheduled")
	}
	span.End(nil)

	if showToast {
		e.notifyOutcome(ctx, result, retryable)
	}
	return result
}

func (e *Engine) abort(ctx context.Context, span *tracing.Span, showToast bool, result DrainResult, err error) DrainResult {
	result.Err = err

	e.mu.Lock()
	e.state.LastSyncError = "Sync failed: " + err.Error()
	e.mu.Unlock()

	e.scheduleRetry()
	logging.LogDrainAborted(ctx, e.logger, err, e.cfg.RetryDelay)
	span.End(err)

	if showToast {
		e.notify(ctx, ports.Event{
			Kind:      ports.EventSyncRetrying,
			Level:     ports.LevelError,
			Message:   "Sync failed. Retrying shortly.",
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
		})
	}
	return result
}

func (e *Engine) notifyOutcome(ctx context.Context, result DrainResult, retryable int) {
	switch {
	case result.Failed > 0 || result.Remaining > 0:
		msg := fmt.Sprintf("Synced %d changes, %d failed.", result.Succeeded, result.Failed)
		if retryable > 0 {
			msg += " Will retry."
		}
		e.notify(ctx, ports.Event{
			Kind:      ports.EventSyncPartial,
			Level:     ports.LevelWarning,
			Message:   msg,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Pending:   result.Remaining,
		})
	case result.Succeeded > 0:
		e.notify(ctx, ports.Event{
			Kind:      ports.EventSyncCompleted,
			Level:     ports.LevelSuccess,
			Message:   fmt.Sprintf("Synced %d offline changes.", result.Succeeded),
			Succeeded: result.Succeeded,
		})
	}
}

// scheduleRetry arms a single quiet re-drain after RetryDelay.
func (e *Engine) scheduleRetry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.retryTimer != nil {
		return
	}

	e.wg.Add(1)
	e.state.RetryScheduled = true
	var timer *time.Timer
	timer = time.AfterFunc(e.cfg.RetryDelay, func() {
		defer e.wg.Done()
		e.mu.Lock()
		if e.retryTimer == timer {
			e.retryTimer = nil
			e.state.RetryScheduled = false
		}
		e.mu.Unlock()
		e.drain(e.baseCtx, false, TriggerRetry)
	})
	e.retryTimer = timer
}

func (e *Engine) cancelRetry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retryTimer != nil && e.retryTimer.Stop() {
		e.wg.Done()
	}
	e.retryTimer = nil
	e.state.RetryScheduled = false
}

func (e *Engine) setSyncing(v bool) {
	e.mu.Lock()
	e.state.IsSyncing = v
	e.mu.Unlock()
}

func (e *Engine) notify(ctx context.Context, event ports.Event) {
	if e.notifier == nil {
		return
	}
	if event.At.IsZero() {
		event.At = e.now()
	}
	e.notifier.Notify(ctx, event)
}

func permanentFailureMessage(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d actions failed permanently. Retry them manually.", n)
}
