package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reporting to the requesting connection.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindPermission    Kind = "permission"
	KindStateConflict Kind = "state_conflict"
	KindDependency    Kind = "dependency"
	KindPersistence   Kind = "persistence"
)

// Error is a classified engine error. Sentinel values are compared by identity
// with errors.Is; wrapped causes are reachable through Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = &Error{Kind: KindNotFound, Message: "room not found"}
	// ErrRoomExists is returned when creating a room whose code is taken.
	ErrRoomExists = &Error{Kind: KindStateConflict, Message: "room already exists"}
	// ErrRoomNotJoinable is returned when joining a room that already started or completed.
	ErrRoomNotJoinable = &Error{Kind: KindStateConflict, Message: "game has already started or completed"}
	// ErrRoomAlreadyStarted is returned when starting a room that left the waiting state.
	ErrRoomAlreadyStarted = &Error{Kind: KindStateConflict, Message: "game has already started"}
	// ErrRoomNotInProgress is returned for round operations outside the in-progress state.
	ErrRoomNotInProgress = &Error{Kind: KindStateConflict, Message: "game is not in progress"}
	// ErrNotEnoughPlayers is returned when the roster is below the required player count.
	ErrNotEnoughPlayers = &Error{Kind: KindStateConflict, Message: "not enough players to start"}
	// ErrNotEnoughQuestions is returned when the room holds fewer questions than its stack size.
	ErrNotEnoughQuestions = &Error{Kind: KindStateConflict, Message: "not enough questions in the room"}
	// ErrNotAdmin is returned when a non-admin attempts an admin-only transition.
	ErrNotAdmin = &Error{Kind: KindPermission, Message: "only the room admin can do that"}
	// ErrParticipantNotFound is returned when a connection id matches no participant.
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Message: "participant not found"}
	// ErrConnectionNotFound is returned when a connection id is not registered for the room.
	ErrConnectionNotFound = &Error{Kind: KindNotFound, Message: "connection not found"}
	// ErrDuplicateAnswer is returned when a participant already answered a question index.
	ErrDuplicateAnswer = &Error{Kind: KindStateConflict, Message: "already answered this question"}
	// ErrQuestionNotFound indicates a question index or reference that does not resolve.
	ErrQuestionNotFound = &Error{Kind: KindNotFound, Message: "question not found"}
	// ErrQuestionNotOpen is returned when answering a question that has not been shown yet.
	ErrQuestionNotOpen = &Error{Kind: KindStateConflict, Message: "question is not open yet"}
	// ErrScorerUnavailable marks a scorer failure; it is absorbed by the evaluator.
	ErrScorerUnavailable = &Error{Kind: KindDependency, Message: "answer scorer unavailable"}
)

// Validation builds a validation error for malformed or missing request fields.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf reports the kind of err. Unclassified errors count as persistence
// failures since they only originate from collaborators.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindPersistence
}
