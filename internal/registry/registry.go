// Package registry is a process-wide named registry of compiled
// subgraphs, following the LLM instance cache's mutex-guarded map
// shape in internal/llm/cache.go, generalised from a single client
// type to any invokable subgraph handle.
package registry

import (
	"context"
	"sync"

	"chat2sql-go/internal/pipeline"
)

// Kind names the built-in subgraph shapes a Descriptor can wrap.
type Kind string

const (
	KindSplitQuery  Kind = "split_query"
	KindGenerateSQL Kind = "generate_sql"
	KindFetchData   Kind = "fetch_data"
	KindCustom      Kind = "custom"
)

// Handle is the uniform shape every registered subgraph exposes:
// mutate the borrowed state in place, observing ctx cancellation at
// its own suspension points.
type Handle interface {
	Run(ctx context.Context, state *pipeline.State)
}

// Descriptor names one registered subgraph.
type Descriptor struct {
	Name   string
	Kind   Kind
	Handle Handle
	Config any
}

// Registry is a shared, concurrency-safe mapping name -> Descriptor.
// Mutating operations (register/replace/remove/clear) take a single
// mutex; get/invoke are safe to call concurrently with each other and
// with mutations.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
}

func New() *Registry {
	return &Registry{entries: make(map[string]Descriptor)}
}

// Register adds name -> (kind, handle, config). Re-registering an
// existing name replaces the entry; the previously compiled handle is
// simply dropped (Go's GC releases it once unreferenced).
func (r *Registry) Register(name string, kind Kind, handle Handle, config any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Descriptor{Name: name, Kind: kind, Handle: handle, Config: config}
}

// Replace is an alias for Register kept for readability at call
// sites that intend to overwrite an existing entry.
func (r *Registry) Replace(name string, kind Kind, handle Handle, config any) {
	r.Register(name, kind, handle, config)
}

// Get returns the descriptor registered under name, if any.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	return d, ok
}

// Remove deletes the entry registered under name, if any.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// List returns the names of every registered subgraph.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Descriptor)
}

// Invoke forwards to the compiled handle registered under name,
// regardless of its kind. It returns false if name is not registered.
func (r *Registry) Invoke(ctx context.Context, name string, state *pipeline.State) bool {
	d, ok := r.Get(name)
	if !ok {
		return false
	}
	d.Handle.Run(ctx, state)
	return true
}
