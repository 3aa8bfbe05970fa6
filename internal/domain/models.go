package domain

import (
	"strings"

	"github.com/google/uuid"
)

// AnonymousAdmin is the admin identity of rooms created by a signed-out user.
const AnonymousAdmin = "anonymous"

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// QuestionKind distinguishes multiple-choice from free-text questions.
type QuestionKind string

const (
	KindObjective  QuestionKind = "objective"
	KindSubjective QuestionKind = "subjective"
)

const (
	MaxStackSize  = 20
	MinOptions    = 2
	MaxOptions    = 10
	roomCodeChars = 8
)

// AnswerRecord is one submitted answer. It is never modified once recorded.
type AnswerRecord struct {
	QuestionIndex int     `json:"questionIndex"`
	Answer        string  `json:"answer"`
	TimeTaken     float64 `json:"timeTaken"`
}

// Participant is one joined player in a room.
type Participant struct {
	UserID       string         `json:"userId,omitempty"`
	Name         string         `json:"name"`
	RollNo       string         `json:"rollNo,omitempty"`
	ConnectionID string         `json:"connectionId"`
	Score        float64        `json:"score"`
	Answers      []AnswerRecord `json:"answers"`
}

// HasAnswered reports whether an answer exists for the question index.
func (p *Participant) HasAnswered(questionIndex int) bool {
	for _, a := range p.Answers {
		if a.QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// RecordAnswer appends the record and adds points, refusing a second answer
// for the same question index.
func (p *Participant) RecordAnswer(record AnswerRecord, points float64) error {
	if p.HasAnswered(record.QuestionIndex) {
		return ErrDuplicateAnswer
	}
	p.Answers = append(p.Answers, record)
	if points > 0 {
		p.Score += points
	}
	return nil
}

// Question is a read-only question bank entry.
type Question struct {
	ID              string       `json:"id" yaml:"id"`
	Text            string       `json:"question" yaml:"question"`
	Kind            QuestionKind `json:"type" yaml:"type"`
	Options         []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectIndex    int          `json:"correctIndex,omitempty" yaml:"correctIndex,omitempty"`
	ReferenceAnswer string       `json:"referenceAnswer,omitempty" yaml:"referenceAnswer,omitempty"`
	UseScorer       bool         `json:"useAI" yaml:"useAI"`
	Explanation     string       `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Validate checks the shape required by the question kind.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Text) == "" {
		return Validation("question id and text are required")
	}
	switch q.Kind {
	case KindObjective:
		if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
			return Validation("question %s: objective questions must have between %d and %d options", q.ID, MinOptions, MaxOptions)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return Validation("question %s: correct index out of range", q.ID)
		}
	case KindSubjective:
		if strings.TrimSpace(q.ReferenceAnswer) == "" {
			return Validation("question %s: reference answer is required", q.ID)
		}
	default:
		return Validation("question %s: unknown type %q", q.ID, q.Kind)
	}
	return nil
}

// CorrectAnswer is the answer disclosed to a participant after submitting.
func (q Question) CorrectAnswer() string {
	if q.Kind == KindObjective {
		if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			return q.Options[q.CorrectIndex]
		}
	}
	return q.ReferenceAnswer
}

// RankingEntry is one line of the final ranking.
type RankingEntry struct {
	Name           string  `json:"name"`
	RollNo         string  `json:"rollNo,omitempty"`
	Score          float64 `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
}

// RosterEntry is the public view of a participant.
type RosterEntry struct {
	Name   string `json:"name"`
	RollNo string `json:"rollNo,omitempty"`
}

// PlayerStats aggregates outcomes across rooms for one durable identity.
type PlayerStats struct {
	UserID      string  `json:"userId"`
	TotalScore  float64 `json:"totalScore"`
	GamesPlayed int     `json:"gamesPlayed"`
}

// NewRoomCode returns a short shareable room code.
func NewRoomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:roomCodeChars])
}
