package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
)

const markerTimeout = 500 * time.Millisecond

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions still live in process; Redis marks which rooms this instance is
// serving so operators can see live rooms across instances.
type SessionStore struct {
	client        *redis.Client
	ttl           time.Duration
	markerTimeout time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		client:        client,
		ttl:           ttl,
		markerTimeout: markerTimeout,
		logger:        logger,
		sessions:      make(map[string]*app.Session),
	}
}

// Acquire takes the lock for the refcount only; the marker write happens
// after it so a slow Redis never holds up other rooms.
func (s *SessionStore) Acquire(roomCode string) *app.Session {
	s.mu.Lock()
	session, ok := s.sessions[roomCode]
	if !ok {
		session = app.NewSession(roomCode)
		s.sessions[roomCode] = session
	}
	session.Hold()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.markerTimeout)
	defer cancel()
	if err := s.client.Set(ctx, sessionKey(roomCode), "1", s.ttl).Err(); err != nil {
		s.logger.Warn("mark session live", zap.String("room", roomCode), zap.Error(err))
	}
	return session
}

func (s *SessionStore) Release(session *app.Session) {
	code := session.Code()
	s.mu.Lock()
	if !session.Drop() {
		s.mu.Unlock()
		return
	}
	current, ok := s.sessions[code]
	owned := ok && current == session
	if owned {
		delete(s.sessions, code)
	}
	s.mu.Unlock()
	session.Close()
	if !owned {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.markerTimeout)
	defer cancel()
	if err := s.client.Del(ctx, sessionKey(code)).Err(); err != nil {
		s.logger.Warn("clear session marker", zap.String("room", code), zap.Error(err))
	}
}

func sessionKey(roomCode string) string {
	return "quizroom:session:" + roomCode
}
