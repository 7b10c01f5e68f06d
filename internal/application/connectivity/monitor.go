// Package connectivity tracks whether the remote backend is reachable and
// publishes online/offline transitions to subscribers.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// Status is a snapshot of the connectivity state.
type Status struct {
	Online      bool
	WasOffline  bool // True for a short window after coming back online
	LastOnline  time.Time
	LastOffline time.Time
}

// JustReconnected reports whether the status describes the window right after
// an offline-to-online transition.
func (s Status) JustReconnected() bool {
	return s.Online && s.WasOffline
}

// Config contains configuration options for the monitor.
type Config struct {
	PollInterval    time.Duration // How often the probe is consulted; zero disables polling
	ProbeTimeout    time.Duration // Per-probe deadline
	ReconnectWindow time.Duration // How long WasOffline stays set after reconnecting
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    10 * time.Second,
		ProbeTimeout:    3 * time.Second,
		ReconnectWindow: 10 * time.Second,
	}
}

// Subscriber receives status changes. It is called outside the monitor lock
// and must not block for long.
type Subscriber func(Status)

// Monitor holds the single connectivity state of the process. Transitions come
// from SetOnline (event input) or from polling a probe.
type Monitor struct {
	cfg      Config
	probe    ports.ConnectivityProbePort
	notifier ports.NotifierPort
	logger   *logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	status      Status
	resetTimer  *time.Timer
	resetGen    int
	subscribers map[int]Subscriber
	nextSubID   int

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewMonitor creates a monitor with the given initial state. The probe and
// notifier may be nil.
func NewMonitor(cfg Config, initialOnline bool, probe ports.ConnectivityProbePort, notifier ports.NotifierPort, logger *logging.Logger) *Monitor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if cfg.ReconnectWindow <= 0 {
		cfg.ReconnectWindow = DefaultConfig().ReconnectWindow
	}
	if logger == nil {
		logger = logging.Nop()
	}

	m := &Monitor{
		cfg:         cfg,
		probe:       probe,
		notifier:    notifier,
		logger:      logger.With("component", "connectivity"),
		now:         time.Now,
		subscribers: make(map[int]Subscriber),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	m.status.Online = initialOnline
	if initialOnline {
		m.status.LastOnline = m.now()
	} else {
		m.status.LastOffline = m.now()
	}
	return m
}

// Status returns the current snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online reports whether the backend is currently considered reachable.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Online
}

// Subscribe registers fn for status changes. The returned function removes
// the subscription and is safe to call more than once.
func (m *Monitor) Subscribe(fn Subscriber) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// SetOnline records an observed connectivity state. Repeating the current
// state is a no-op.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.status.Online == online {
		m.mu.Unlock()
		return
	}

	now := m.now()
	m.status.Online = online
	if online {
		m.status.LastOnline = now
		m.status.WasOffline = true
		m.armResetLocked()
	} else {
		m.status.LastOffline = now
		m.status.WasOffline = false
		m.stopResetLocked()
	}
	snapshot := m.status
	subs := m.subscribersLocked()
	m.mu.Unlock()

	ctx := context.Background()
	if online {
		m.logger.Info("connectivity restored")
		m.notify(ctx, ports.Event{
			Kind:    ports.EventOnline,
			Level:   ports.LevelSuccess,
			Message: "Back online. Syncing your data...",
			At:      now,
		})
	} else {
		m.logger.Warn("connectivity lost")
		m.notify(ctx, ports.Event{
			Kind:    ports.EventOffline,
			Level:   ports.LevelWarning,
			Message: "You're offline. Changes will sync when you reconnect.",
			At:      now,
		})
	}

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Check runs the probe once and applies its result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probe == nil {
		return m.Online()
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	err := m.probe.Ping(ctx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "error", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Start probes once to establish the initial state and then keeps polling
// until ctx is cancelled or Stop is called. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		if m.probe == nil || m.cfg.PollInterval <= 0 {
			if m.probe != nil {
				m.Check(ctx)
			}
			close(m.doneCh)
			return
		}

		m.Check(ctx)
		go m.poll(ctx)
	})
}

func (m *Monitor) poll(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Stop ends polling and cancels the reconnect window timer.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.startOnce.Do(func() { close(m.doneCh) })
	<-m.doneCh

	m.mu.Lock()
	m.stopResetLocked()
	m.mu.Unlock()
}

// armResetLocked restarts the WasOffline window. A transition inside the
// window extends it rather than stacking timers.
func (m *Monitor) armResetLocked() {
	m.stopResetLocked()
	gen := m.resetGen
	m.resetTimer = time.AfterFunc(m.cfg.ReconnectWindow, func() { m.clearWasOffline(gen) })
}

func (m *Monitor) stopResetLocked() {
	m.resetGen++
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

func (m *Monitor) clearWasOffline(gen int) {
	m.mu.Lock()
	if gen != m.resetGen || !m.status.WasOffline {
		m.mu.Unlock()
		return
	}
	m.status.WasOffline = false
	m.resetTimer = nil
	snapshot := m.status
	subs := m.subscribersLocked()
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// subscribersLocked returns subscribers in registration order.
func (m *Monitor) subscribersLocked() []Subscriber {
	subs := make([]Subscriber, 0, len(m.subscribers))
	for id := 0; id < m.nextSubID; id++ {
		if fn, ok := m.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func (m *Monitor) notify(ctx context.Context, event ports.Event) {
	if m.notifier != nil {
		m.notifier.Notify(ctx, event)
	}
}
