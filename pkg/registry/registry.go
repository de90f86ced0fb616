package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// ErrGraphNotFound is returned when a name is not registered.
var ErrGraphNotFound = errors.New("graph not found")

// Entry is a registered graph with its metadata.
type Entry struct {
	Name        string
	Description string
	Graph       *graph.Compiled
	// Example is a sample input, shown by hosts and used when none is given.
	Example state.Update
}

// Registry manages the graphs a host can invoke.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]Entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		graphs: make(map[string]Entry),
	}
}

// Register adds a graph to the registry.
// If a graph with the same name exists, it is overwritten.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[e.Name] = e
}

// Get looks up a graph by name.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.graphs[name]
	r.mu.RUnlock()

	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}
	return e, nil
}

// List returns every entry sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.graphs))
	for _, e := range r.graphs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run looks up a graph by name and runs it.
// Returns an error wrapping ErrGraphNotFound if the graph is not registered.
func (r *Registry) Run(ctx context.Context, name string, input state.Update, opts ...graph.Option) (*graph.RunInfo, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return e.Graph.Run(ctx, input, opts...)
}
