package realtime

import (
	"sync"

	"netpulseserver/internal/wire"
)

// Registry tracks the live connection for each authenticated user. At most
// one connection per user: a new register evicts the old binding.
//
// Locking is per user entry. The outer mutex only guards the map structure
// and is never held while touching a connection, so churn on one user
// cannot delay delivery to another.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu     sync.Mutex
	client *Client
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

func (r *Registry) entryFor(userID string) *registryEntry {
	r.mu.RLock()
	e := r.entries[userID]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.entries[userID]; e == nil {
		e = &registryEntry{}
		r.entries[userID] = e
	}
	return e
}

func (r *Registry) lookup(userID string) *registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[userID]
}

// Register binds c as userID's live connection and returns the client it
// replaced, if any. The caller is responsible for closing the replaced
// client.
func (r *Registry) Register(userID string, c *Client) *Client {
	e := r.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.client
	e.client = c
	return prev
}

// Unregister clears the binding, but only while c is still the bound
// client. A replaced connection's deferred unregister therefore cannot
// evict its replacement. Reports whether the binding was cleared.
func (r *Registry) Unregister(userID string, c *Client) bool {
	e := r.lookup(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != c {
		return false
	}
	e.client = nil
	return true
}

// Online reports whether the user has a live connection right now.
func (r *Registry) Online(userID string) bool {
	e := r.lookup(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client != nil
}

// CloseAll closes every live connection. Called at shutdown once the
// server has stopped accepting upgrades; each closed connection's read
// loop then runs its normal disconnect path.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		c := e.client
		e.mu.Unlock()
		if c != nil {
			c.Close()
		}
	}
}

// Send delivers an event to the user's live connection. Best-effort: no
// connection or a full send buffer drops the event silently. Reports
// whether the event was enqueued.
func (r *Registry) Send(userID string, event wire.Event) bool {
	e := r.lookup(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	c := e.client
	e.mu.Unlock()
	if c == nil {
		return false
	}
	return c.Enqueue(event)
}
