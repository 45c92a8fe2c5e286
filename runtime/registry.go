package runtime

import (
	"sync"

	"github.com/google/uuid"

	"nego-lab/domain"
)

// Handle identifies one opened conversation session. Late transport results
// tagged with a stale handle are discarded instead of touching a session
// reopened under the same conversation id.
type Handle struct {
	ID           uuid.UUID
	Conversation domain.ConversationID
}

// Registry tracks open sessions by conversation.
// Sessions for different conversations run independently.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConversationID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ConversationID]*Session)}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.conversation] = s
}

func (r *Registry) Get(id domain.ConversationID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetByHandle resolves a handle only while the exact same session is still
// registered. A handle from a closed session never matches.
func (r *Registry) GetByHandle(h Handle) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[h.Conversation]
	if !ok || s.handle != h.ID {
		return nil, false
	}
	return s, true
}

func (r *Registry) Remove(id domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Each returns a snapshot of the registered sessions, so callers can walk
// them without holding the registry lock.
func (r *Registry) Each() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
