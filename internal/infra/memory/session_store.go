package memory

import (
	"sync"

	"quizroom-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Acquire(roomCode string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[roomCode]
	if !ok {
		session = app.NewSession(roomCode)
		s.sessions[roomCode] = session
	}
	session.Hold()
	return session
}

func (s *SessionStore) Release(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !session.Drop() {
		return
	}
	if current, ok := s.sessions[session.Code()]; ok && current == session {
		delete(s.sessions, session.Code())
	}
	session.Close()
}

// Active reports how many room sessions are currently held.
func (s *SessionStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
