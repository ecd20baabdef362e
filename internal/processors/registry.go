package processors

import "sort"

// Registry holds processors sorted by descending priority and dispatches
// by Supports() — extension-string matching, no reflection (spec.md §9).
type Registry struct {
	processors []Processor
}

// NewRegistry builds a registry from the given processors, highest
// priority first (ties keep insertion order, matching a stable sort).
func NewRegistry(procs ...Processor) *Registry {
	sorted := make([]Processor, len(procs))
	copy(sorted, procs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Registry{processors: sorted}
}

// Find returns the first processor (by descending priority) whose
// Supports() returns true for path, or nil.
func (r *Registry) Find(path string) Processor {
	for _, p := range r.processors {
		if p.Supports(path) {
			return p
		}
	}
	return nil
}

// All returns the registered processors in priority order.
func (r *Registry) All() []Processor {
	return r.processors
}
