// Package notify provides ports.NotifierPort implementations that surface
// sync progress to logs and terminals.
package notify

import (
	"context"
	"sync"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// Log writes each event as a structured log record.
type Log struct {
	logger *logging.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *logging.Logger) *Log {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Log{logger: logger.With("component", "notify")}
}

// Notify implements ports.NotifierPort.
func (l *Log) Notify(ctx context.Context, e ports.Event) {
	args := []any{"event", string(e.Kind)}
	if e.Pending > 0 {
		args = append(args, "pending", e.Pending)
	}
	if e.Succeeded > 0 || e.Failed > 0 {
		args = append(args, "succeeded", e.Succeeded, "failed", e.Failed)
	}

	switch e.Level {
	case ports.LevelError:
		l.logger.ErrorContext(ctx, e.Message, args...)
	case ports.LevelWarning:
		l.logger.WarnContext(ctx, e.Message, args...)
	default:
		l.logger.InfoContext(ctx, e.Message, args...)
	}
}

// Printer is the subset of the CLI formatter used for toasts.
type Printer interface {
	Success(format string, args ...any) error
	Error(format string, args ...any) error
	Warning(format string, args ...any) error
	Info(format string, args ...any) error
}

// Toast prints each event as a one-line terminal message.
type Toast struct {
	mu      sync.Mutex
	printer Printer
}

// NewToast creates a Toast notifier.
func NewToast(p Printer) *Toast {
	return &Toast{printer: p}
}

// Notify implements ports.NotifierPort. Writes are serialized because the
// engine and monitor notify from different goroutines.
func (t *Toast) Notify(ctx context.Context, e ports.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Level {
	case ports.LevelSuccess:
		_ = t.printer.Success("%s", e.Message)
	case ports.LevelError:
		_ = t.printer.Error("%s", e.Message)
	case ports.LevelWarning:
		_ = t.printer.Warning("%s", e.Message)
	default:
		_ = t.printer.Info("%s", e.Message)
	}
}

// Fanout delivers each event to every notifier in order.
type Fanout []ports.NotifierPort

// Notify implements ports.NotifierPort.
func (f Fanout) Notify(ctx context.Context, e ports.Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}
