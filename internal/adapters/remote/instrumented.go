package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/tracing"
)

// Ensure Instrumented implements ports.RemoteServicePort.
var _ ports.RemoteServicePort = (*Instrumented)(nil)

// Instrumented decorates a backend with a client span and a debug log per call.
type Instrumented struct {
	next   ports.RemoteServicePort
	tracer *tracing.Tracer
	logger *logging.Logger
}

// Instrument wraps next. Nil tracer or logger fall back to the package defaults.
func Instrument(next ports.RemoteServicePort, tracer *tracing.Tracer, logger *logging.Logger) *Instrumented {
	if tracer == nil {
		tracer = tracing.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Instrumented{next: next, tracer: tracer, logger: logger}
}

// Unwrap returns the decorated backend.
func (i *Instrumented) Unwrap() ports.RemoteServicePort {
	return i.next
}

// Name returns the decorated backend's name.
func (i *Instrumented) Name() string {
	return i.next.Name()
}

// Insert implements ports.RemoteServicePort.
func (i *Instrumented) Insert(ctx context.Context, table string, record json.RawMessage) error {
	return i.observe(ctx, "insert", table, func(ctx context.Context) error {
		return i.next.Insert(ctx, table, record)
	})
}

// Update implements ports.RemoteServicePort.
func (i *Instrumented) Update(ctx context.Context, table string, match ports.Match, patch json.RawMessage) error {
	return i.observe(ctx, "update", table, func(ctx context.Context) error {
		return i.next.Update(ctx, table, match, patch)
	})
}

// Delete implements ports.RemoteServicePort.
func (i *Instrumented) Delete(ctx context.Context, table string, match ports.Match) error {
	return i.observe(ctx, "delete", table, func(ctx context.Context) error {
		return i.next.Delete(ctx, table, match)
	})
}

// Call implements ports.RemoteServicePort.
func (i *Instrumented) Call(ctx context.Context, procedure string, payload json.RawMessage) error {
	return i.observe(ctx, "call", procedure, func(ctx context.Context) error {
		return i.next.Call(ctx, procedure, payload)
	})
}

// Ping implements ports.RemoteServicePort. Pings are not traced; the
// connectivity monitor issues them on every poll.
func (i *Instrumented) Ping(ctx context.Context) error {
	return i.next.Ping(ctx)
}

// Close closes the decorated backend if it holds resources.
func (i *Instrumented) Close() error {
	if closer, ok := i.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (i *Instrumented) observe(ctx context.Context, operation, target string, call func(context.Context) error) error {
	ctx = logging.WithBackend(ctx, i.next.Name())
	ctx, span := i.tracer.StartRemote(ctx, i.next.Name(), operation, target)

	start := time.Now()
	err := call(ctx)
	latency := time.Since(start)

	if code, ok := StatusCode(err); ok {
		span.Set("remote.status_code", code)
	}

	if err != nil {
		span.End(err)
		i.logger.DebugContext(ctx, "remote request failed",
			"operation", operation,
			"target", target,
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)
		return err
	}

	span.End(nil)
	i.logger.DebugContext(ctx, "remote request completed",
		"operation", operation,
		"target", target,
		"latency_ms", latency.Milliseconds(),
	)
	return nil
}

// StatusCode extracts a transport status code from err when the backend reports one.
func StatusCode(err error) (int, bool) {
	var coded interface{ HTTPStatus() int }
	if errors.As(err, &coded) {
		return coded.HTTPStatus(), true
	}
	return 0, false
}
