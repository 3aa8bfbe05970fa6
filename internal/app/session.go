package app

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session is the exclusive execution context of one room. Jobs submitted with
// Do run one at a time, in arrival order, on a single goroutine.
type Session struct {
	code      string
	createdAt time.Time
	jobs      chan func()
	done      chan struct{}
	closeOnce sync.Once

	// refs is guarded by the owning SessionRepository.
	refs int
}

// NewSession starts the room's goroutine. Infrastructure layers create
// sessions through a SessionRepository.
func NewSession(code string) *Session {
	return newSessionWithClock(code, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(code string, now func() time.Time) *Session {
	return newSessionWithClock(code, now)
}

func newSessionWithClock(code string, now func() time.Time) *Session {
	s := &Session{
		code:      code,
		createdAt: now(),
		jobs:      make(chan func()),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.done:
			return
		}
	}
}

// Code is the room code the session serializes.
func (s *Session) Code() string { return s.code }

// CreatedAt is when the session goroutine started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Do runs fn on the session goroutine and waits for it. Once fn has been
// accepted it always runs to completion; ctx only bounds the wait for a turn.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("room %s: panic: %v", s.code, r)
			}
		}()
		result <- fn()
	}
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errSessionClosed
	}
	return <-result
}

// Hold registers one more user of the session. Callers hold the repository lock.
func (s *Session) Hold() { s.refs++ }

// Drop releases one user and reports whether the session became idle.
// Callers hold the repository lock.
func (s *Session) Drop() bool {
	if s.refs > 0 {
		s.refs--
	}
	return s.refs == 0
}

// Close stops the session goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
