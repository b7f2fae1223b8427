package swarm

import (
	"sync"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/trackererr"
)

// Registry maps info-hash to Swarm. Registration and unregistration are
// rare compared to lookups, so the registry takes an exclusive writer
// guard only for those two operations (spec §5).
type Registry struct {
	clock btutil.Clock

	mu     sync.RWMutex
	swarms map[InfoHash]*Swarm
}

// NewRegistry creates an empty registry using clock for every swarm it
// creates.
func NewRegistry(clock btutil.Clock) *Registry {
	return &Registry{
		clock:  clock,
		swarms: make(map[InfoHash]*Swarm),
	}
}

// Register creates and stores a Swarm for torrent, replacing any existing
// swarm for the same info-hash, and returns it.
func (r *Registry) Register(torrent Descriptor) *Swarm {
	s := New(torrent, r.clock)
	r.mu.Lock()
	r.swarms[torrent.InfoHash] = s
	r.mu.Unlock()
	return s
}

// Unregister removes the swarm for hash, if any.
func (r *Registry) Unregister(hash InfoHash) {
	r.mu.Lock()
	delete(r.swarms, hash)
	r.mu.Unlock()
}

// Lookup returns the swarm for hash, or (nil, ErrUnknownTorrent) if it was
// never registered. A swarm is never created implicitly from a lookup.
func (r *Registry) Lookup(hash InfoHash) (*Swarm, error) {
	r.mu.RLock()
	s, ok := r.swarms[hash]
	r.mu.RUnlock()
	if !ok {
		return nil, trackererr.ErrUnknownTorrent
	}
	return s, nil
}

// Swarms returns a snapshot of every registered swarm, for the periodic
// collector to sweep.
func (r *Registry) Swarms() []*Swarm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Swarm, 0, len(r.swarms))
	for _, s := range r.swarms {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered swarms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.swarms)
}
