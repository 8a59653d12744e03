package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/GoCodeAlone/viewhost"
)

// MemoryStore keeps sessions in process memory. Sessions are stored and returned as
// copies, so callers never share a *Session.
type MemoryStore struct {
	maxItems int

	mu       sync.RWMutex
	sessions map[string]*viewhost.Session
	running  bool
}

// NewMemoryStore creates a store holding at most maxItems sessions (0 = unlimited).
func NewMemoryStore(maxItems int) *MemoryStore {
	return &MemoryStore{
		maxItems: maxItems,
		sessions: make(map[string]*viewhost.Session),
	}
}

// Start is idempotent.
func (s *MemoryStore) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

// Stop drops every session.
func (s *MemoryStore) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.sessions = make(map[string]*viewhost.Session)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*viewhost.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, ErrStoreStopped
	}

	sess, ok := s.sessions[id]
	if !ok {
		return nil, viewhost.ErrSessionNotFound
	}
	if sess.Expired(time.Now()) {
		return nil, viewhost.ErrSessionExpired
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, sess *viewhost.Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrStoreStopped
	}
	if _, exists := s.sessions[sess.ID]; !exists && s.maxItems > 0 && len(s.sessions) >= s.maxItems {
		return ErrStoreFull
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// PurgeExpired removes sessions that expired before now and returns how many.
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
