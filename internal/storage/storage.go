package storage

import (
	"sync"

	"github.com/splitshot/splitshot/internal/session"
)

// Store holds the live session controllers, keyed by session ID.
type Store struct {
	sessions map[string]*session.Controller
	mu       sync.RWMutex
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*session.Controller),
	}
}

func (s *Store) Get(sessionID string) (*session.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, exists := s.sessions[sessionID]
	return ctrl, exists
}

func (s *Store) Set(sessionID string, ctrl *session.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = ctrl
}

func (s *Store) GetAll() map[string]*session.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*session.Controller, len(s.sessions))
	for k, v := range s.sessions {
		result[k] = v
	}
	return result
}

func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// CloseAll tears down every session. Called on server shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ctrl := range s.sessions {
		ctrl.Close()
		delete(s.sessions, id)
	}
}
