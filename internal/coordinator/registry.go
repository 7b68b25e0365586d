package coordinator

import (
	"fmt"
	"sync"
)

// Registry is the process-scoped set of running coordinators, keyed by
// server id. It is created once by the host and injected where needed;
// there is deliberately no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	coords map[string]*Coordinator
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{coords: make(map[string]*Coordinator)}
}

// Add registers a started coordinator. Adding the same server id twice
// is an error: setup must tear the old one down first.
func (r *Registry) Add(serverID string, c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("registry is closed")
	}
	if _, exists := r.coords[serverID]; exists {
		return fmt.Errorf("coordinator already registered for server %s", serverID)
	}
	r.coords[serverID] = c
	return nil
}

func (r *Registry) Get(serverID string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coords[serverID]
	return c, ok
}

// Remove unregisters and stops one coordinator.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	c := r.coords[serverID]
	delete(r.coords, serverID)
	r.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// List returns the registered coordinators in no particular order.
func (r *Registry) List() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, 0, len(r.coords))
	for _, c := range r.coords {
		out = append(out, c)
	}
	return out
}

// Close stops every coordinator and rejects further registration.
func (r *Registry) Close() {
	r.mu.Lock()
	coords := r.coords
	r.coords = make(map[string]*Coordinator)
	r.closed = true
	r.mu.Unlock()
	for _, c := range coords {
		c.Stop()
	}
}
