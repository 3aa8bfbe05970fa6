package app

import (
	"context"
	"errors"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/evaluator"
	"quizroom-service/internal/registry"
)

var errSessionClosed = errors.New("room session closed")

// SessionRepository hands out the per-room execution context. Acquire returns
// the live session for the code (creating it if needed) and counts the caller
// as a holder; Release drops the hold and stops the session when idle.
type SessionRepository interface {
	Acquire(roomCode string) *Session
	Release(s *Session)
}

// RoomStore is the durable room record store. It offers no compare-and-swap;
// callers serialize read-modify-write cycles per room.
type RoomStore interface {
	FindByCode(ctx context.Context, code string) (*domain.Room, error)
	Create(ctx context.Context, room *domain.Room) error
	Update(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, code string) error
}

// QuestionRepository resolves question references from the question bank.
type QuestionRepository interface {
	GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// StatsStore keeps per-identity aggregates across rooms.
type StatsStore interface {
	// Increment atomically adds score to the identity's total and one game played.
	Increment(ctx context.Context, userID string, score float64) error
	Top(ctx context.Context, limit int) ([]domain.PlayerStats, error)
}

// Broadcaster is the connection registry as seen by the coordinator.
type Broadcaster interface {
	NewConnectionID() string
	Register(roomCode, connectionID, userID string, isAdmin bool, peer registry.Peer)
	Lookup(connectionID string) (registry.Entry, bool)
	HasPeer(roomCode string, peer registry.Peer) bool
	Unregister(connectionID string) (registry.Entry, bool)
	DropRoom(roomCode string) int
	Broadcast(roomCode, exceptID string, ev domain.Event) int
	BroadcastAdmins(roomCode string, ev domain.Event) int
}

// AnswerEvaluator grades a submission.
type AnswerEvaluator interface {
	Evaluate(ctx context.Context, q domain.Question, answer string) evaluator.Outcome
}
