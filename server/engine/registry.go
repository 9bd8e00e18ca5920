package engine

import (
	"context"
	"sync"
)

// liveSession is one in-flight generation call: its correlation id, the
// message slot it owns, and the handle that aborts the backend stream.
type liveSession struct {
	id        string
	chatID    int32
	messageID int32
	cancel    context.CancelFunc
}

// Registry tracks in-flight generation sessions by correlation id so an
// independent cancel-request path can find their abort handles. It is the
// only shared mutable state in the engine and is safe for concurrent
// register/lookup/cancel/remove.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*liveSession{}}
}

func (r *Registry) register(s *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// remove drops the session; safe to call for ids already gone.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Has reports whether a live session owns the given correlation id.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// CancelByID aborts the session with the given correlation id. Cancelling an
// unknown or already-finished id is a no-op. Returns the number of sessions
// aborted (0 or 1).
func (r *Registry) CancelByID(id string) int {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	s.cancel()
	return 1
}

// CancelByChat aborts every session generating for the given chat and
// returns how many were aborted.
func (r *Registry) CancelByChat(chatID int32) int {
	r.mu.Lock()
	var targets []*liveSession
	for _, s := range r.sessions {
		if s.chatID == chatID {
			targets = append(targets, s)
		}
	}
	r.mu.Unlock()
	for _, s := range targets {
		s.cancel()
	}
	return len(targets)
}
