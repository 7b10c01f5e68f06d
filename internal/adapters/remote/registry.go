// Package remote holds the configured remote record store backends and the
// instrumentation wrapped around the active one.
package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// maxConcurrentProbes bounds the pings Probe runs at once.
const maxConcurrentProbes = 4

// Registry holds backends by name in registration order.
type Registry struct {
	mu       sync.RWMutex
	names    []string
	backends map[string]ports.RemoteServicePort
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]ports.RemoteServicePort)}
}

// Register adds backend under its Name. Registering a name again replaces the
// backend and keeps its position.
func (r *Registry) Register(backend ports.RemoteServicePort) error {
	if backend == nil {
		return errors.New("backend cannot be nil")
	}
	name := backend.Name()
	if name == "" {
		return errors.New("backend name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		r.names = append(r.names, name)
	}
	r.backends[name] = backend
	return nil
}

// Get returns the named backend, or nil.
func (r *Registry) Get(name string) ports.RemoteServicePort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// GetRequired returns the named backend or an ErrBackendNotFound configuration error.
func (r *Registry) GetRequired(name string) (ports.RemoteServicePort, error) {
	if b := r.Get(name); b != nil {
		return b, nil
	}
	return nil, domainErrors.WithContext(
		domainErrors.NewError(domainErrors.CodeConfiguration, "resolve remote backend", domainErrors.ErrBackendNotFound),
		"backend", name,
	)
}

// List returns the registered names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// ProbeResult is one backend's reachability.
type ProbeResult struct {
	Name    string        `json:"name"`
	Online  bool          `json:"online"`
	Latency time.Duration `json:"latency_ns"`
	Error   string        `json:"error,omitempty"`
}

// Probe pings every backend concurrently and returns the results in
// registration order.
func (r *Registry) Probe(ctx context.Context) []ProbeResult {
	names := r.List()
	results := make([]ProbeResult, len(names))

	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)
	for i, name := range names {
		backend := r.Get(name)
		g.Go(func() error {
			start := time.Now()
			err := backend.Ping(ctx)
			results[i] = ProbeResult{Name: name, Online: err == nil, Latency: time.Since(start)}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Close closes every backend that holds resources and joins their errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.names {
		if c, ok := r.backends[name].(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
