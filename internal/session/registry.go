package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultHistory is how many closed sessions a Registry keeps listing.
const DefaultHistory = 64

// Info is a point-in-time view of one registered session.
type Info struct {
	ID         int64
	Trace      string
	UserName   string
	RemoteAddr string
	Connected  bool
	Opened     time.Time
}

// Registry tracks every session accepted by the server.  Closed
// sessions stay listed (as disconnected) until History newer closed
// sessions have displaced them.
//
// All methods are safe for concurrent use.
type Registry struct {
	// History bounds the number of closed sessions retained.  Zero
	// means DefaultHistory.
	History int

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Add registers s, pruning the oldest closed sessions beyond History.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[int64]*Session)
	}
	r.sessions[s.ID] = s
	r.pruneLocked()
}

// Remove forgets the session with the given id.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// List returns a snapshot of all registered sessions ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		info := Info{
			ID:        s.ID,
			Trace:     s.Trace,
			UserName:  s.UserName(),
			Connected: s.Connected(),
			Opened:    s.Opened,
		}
		if addr := s.RemoteAddr(); addr != nil {
			info.RemoteAddr = addr.String()
		}
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Live returns the number of connected sessions.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Connected() {
			n++
		}
	}
	return n
}

func (r *Registry) pruneLocked() {
	limit := r.History
	if limit <= 0 {
		limit = DefaultHistory
	}
	var closed []int64
	for id, s := range r.sessions {
		if !s.Connected() {
			closed = append(closed, id)
		}
	}
	if len(closed) <= limit {
		return
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i] < closed[j] })
	for _, id := range closed[:len(closed)-limit] {
		delete(r.sessions, id)
	}
}
