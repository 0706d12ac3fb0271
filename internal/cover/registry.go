package cover

import (
	"sort"
	"sync"
)

// Registry holds every running coordinator and finds the one managing a
// cover.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[string]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{coordinators: make(map[string]*Coordinator)}
}

// Add registers a coordinator under its entry id, replacing any previous one.
func (r *Registry) Add(c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinators[c.EntryID()] = c
}

// Remove unregisters and returns the coordinator of an entry.
func (r *Registry) Remove(entryID string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coordinators[entryID]
	delete(r.coordinators, entryID)
	return c, ok
}

// Coordinator returns the coordinator of an entry.
func (r *Registry) Coordinator(entryID string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coordinators[entryID]
	return c, ok
}

// Find returns the coordinator managing a cover.
func (r *Registry) Find(cover string) (*Coordinator, bool) {
	for _, c := range r.All() {
		if _, ok := c.Engine(cover); ok {
			return c, true
		}
	}
	return nil, false
}

// All returns the registered coordinators sorted by entry id.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	out := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntryID() < out[j].EntryID() })
	return out
}

// Snapshots returns the state of every cover of every entry.
func (r *Registry) Snapshots() []Snapshot {
	var out []Snapshot
	for _, c := range r.All() {
		out = append(out, c.Snapshots()...)
	}
	return out
}
