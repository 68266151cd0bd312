// Package engine provides the adapter boundary over the concrete query
// engines and the normalization of their native results into one canonical
// shape.
package engine

import (
	"context"
	"errors"
	"time"

	"lakerunner/internal/domain"
)

// RawResult is an engine-native result as scanned off the wire: column
// names, the engine's own type names, row values, and execution facts.
// The normalizer converts this into a domain.QueryResult.
type RawResult struct {
	Columns   []string
	TypeNames []string
	Rows      [][]interface{}
	WallTime  time.Duration
	PlanText  string // empty when the adapter does not capture plans
}

// Adapter is the uniform capability surface over one execution engine.
//
// Execute must respect ctx: once cancelled, it aborts as soon as practical
// and returns an *domain.AdapterError with kind CANCELLED rather than a
// success or failure outcome. Adapters must not leak session state across
// calls; every execution borrows a pooled connection and returns it on all
// exit paths.
type Adapter interface {
	Descriptor() domain.EngineDescriptor
	Execute(ctx context.Context, sqlText string) (*RawResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Registry is the engine-id → adapter map built once at startup.
// Read-only afterwards, so lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates a registry over the given adapters. Registration
// order is preserved for listings.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.Descriptor().ID
		if _, dup := r.adapters[id]; dup {
			continue
		}
		r.adapters[id] = a
		r.order = append(r.order, id)
	}
	return r
}

// Get returns the adapter registered for the engine id.
func (r *Registry) Get(engineID string) (Adapter, error) {
	a, ok := r.adapters[engineID]
	if !ok {
		return nil, domain.ErrUnknownEngine("engine %q has no registered adapter", engineID)
	}
	return a, nil
}

// Descriptors returns the static descriptors of all registered adapters in
// registration order.
func (r *Registry) Descriptors() []domain.EngineDescriptor {
	out := make([]domain.EngineDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id].Descriptor())
	}
	return out
}

// Close releases every adapter's connections.
func (r *Registry) Close() error {
	var errs []error
	for _, id := range r.order {
		if err := r.adapters[id].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
