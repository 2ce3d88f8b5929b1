package provider

import (
	"sort"

	"github.com/sells-group/place-resolver/internal/model"
)

type registered struct {
	adapter  Adapter
	priority int
}

// Registry holds adapters in static priority order (lower number first, ties
// broken by registration order). Register is not safe to call concurrently
// with lookups; build the registry at startup.
type Registry struct {
	entries []registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter. A second adapter with the same ID replaces the first.
func (r *Registry) Register(a Adapter, priority int) {
	for i, e := range r.entries {
		if e.adapter.ID() == a.ID() {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	r.entries = append(r.entries, registered{adapter: a, priority: priority})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].priority < r.entries[j].priority
	})
}

// ProvidersFor returns the adapters eligible for kind in priority order.
// Throttled adapters are included; callers skip them.
func (r *Registry) ProvidersFor(kind model.ArtifactKind) []Adapter {
	var out []Adapter
	for _, e := range r.entries {
		if e.adapter.Supports(kind) {
			out = append(out, e.adapter)
		}
	}
	return out
}

// All returns every adapter in priority order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.adapter
	}
	return out
}

// Get looks up an adapter by ID.
func (r *Registry) Get(id string) (Adapter, bool) {
	for _, e := range r.entries {
		if e.adapter.ID() == id {
			return e.adapter, true
		}
	}
	return nil, false
}

// Health reports every adapter in priority order.
func (r *Registry) Health() []Health {
	out := make([]Health, len(r.entries))
	for i, e := range r.entries {
		h := e.adapter.Health()
		h.Priority = e.priority
		out[i] = h
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int { return len(r.entries) }
