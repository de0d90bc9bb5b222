// Package modules maintains a process-wide cache of initialized backing
// module instances, one per logical view name.
package modules

import (
	"context"
	"fmt"
	"sync"

	"github.com/appdrop/appdrop/internal/metrics"
)

// Well-known view names.
const (
	ViewDownloads = "downloads"
	ViewAdmin     = "admin"
	ViewShortener = "shortener"
)

// Handle is an opaque initialized module instance.
type Handle any

// Constructor builds the module instance for a view. It is invoked at most
// once per view per successful initialization; it may touch the network or
// filesystem.
type Constructor func(ctx context.Context, view string) (Handle, error)

// InitError reports a failed module construction.
type InitError struct {
	View string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize module for view %q: %v", e.View, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

type entry struct {
	done   chan struct{}
	handle Handle
	err    error
}

// Registry memoizes one module handle per view name. Concurrent Acquire
// calls for the same view coalesce into a single construction; calls for
// different views proceed independently.
type Registry struct {
	construct Constructor

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates a registry using construct for first-use initialization.
func NewRegistry(construct Constructor) *Registry {
	return &Registry{
		construct: construct,
		entries:   make(map[string]*entry),
	}
}

// Acquire returns the memoized handle for view, constructing it on first
// use. A failed construction is not cached: the next Acquire retries from
// scratch. All callers racing on the same first use observe the same
// eventual handle.
func (r *Registry) Acquire(ctx context.Context, view string) (Handle, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[view]
		if !ok {
			e = &entry{done: make(chan struct{})}
			r.entries[view] = e
			r.mu.Unlock()

			handle, err := r.construct(ctx, view)
			if err != nil {
				r.mu.Lock()
				delete(r.entries, view)
				r.mu.Unlock()
				e.err = &InitError{View: view, Err: err}
				close(e.done)
				metrics.RecordModuleInit(view, false)
				return nil, e.err
			}

			e.handle = handle
			close(e.done)
			metrics.RecordModuleInit(view, true)
			return handle, nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.done:
			if e.err != nil {
				// The in-flight construction failed; retry.
				continue
			}
			return e.handle, nil
		}
	}
}

// Reset drops the cached handle for view. Intended for tests.
func (r *Registry) Reset(view string) {
	r.mu.Lock()
	delete(r.entries, view)
	r.mu.Unlock()
}

// ResetAll drops every cached handle. Intended for tests.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
}
