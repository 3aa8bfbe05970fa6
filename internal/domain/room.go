package domain

import (
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Room is the durable record of one quiz session.
type Room struct {
	Code                 string        `json:"roomId"`
	AdminID              string        `json:"adminId"`
	StackSize            int           `json:"stackSize"`
	RequiredPlayers      int           `json:"requiredPlayers"`
	Participants         []Participant `json:"participants"`
	Questions            []string      `json:"questions"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	Status               Status        `json:"status"`
	CreatedAt            time.Time     `json:"createdAt"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
}

// NewRoom builds a waiting room. An empty admin id means the creator was signed out.
func NewRoom(code, adminID string, stackSize, requiredPlayers int, questions []string, now time.Time) (*Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = NewRoomCode()
	}
	if adminID == "" {
		adminID = AnonymousAdmin
	}
	if stackSize < 1 || stackSize > MaxStackSize {
		return nil, Validation("stackSize must be between 1 and %d", MaxStackSize)
	}
	if requiredPlayers < 1 {
		return nil, Validation("requiredPlayers must be at least 1")
	}
	return &Room{
		Code:            code,
		AdminID:         adminID,
		StackSize:       stackSize,
		RequiredPlayers: requiredPlayers,
		Participants:    []Participant{},
		Questions:       append([]string(nil), questions...),
		Status:          StatusWaiting,
		CreatedAt:       now,
	}, nil
}

// IsAdmin reports whether actorID controls the room. A room created by a
// signed-out user is controlled by every signed-out actor.
func (r *Room) IsAdmin(actorID string) bool {
	return r.AdminID == actorID || (r.AdminID == AnonymousAdmin && actorID == "")
}

// CanStart reports whether the roster satisfies the required player count.
func (r *Room) CanStart() bool {
	return len(r.Participants) >= r.RequiredPlayers
}

// Join appends a participant. Only waiting rooms accept new participants.
func (r *Room) Join(p Participant) error {
	if r.Status != StatusWaiting {
		return ErrRoomNotJoinable
	}
	if p.Answers == nil {
		p.Answers = []AnswerRecord{}
	}
	r.Participants = append(r.Participants, p)
	return nil
}

// Participant returns the participant bound to connectionID.
func (r *Room) Participant(connectionID string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].ConnectionID == connectionID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// Leave removes the participant while the room is waiting. Once the game
// started the record stays so the final outcome keeps its answers and score.
func (r *Room) Leave(connectionID string) (Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].ConnectionID != connectionID {
			continue
		}
		leaving := r.Participants[i]
		if r.Status != StatusWaiting {
			return leaving, false
		}
		r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
		return leaving, true
	}
	return Participant{}, false
}

// Start samples StackSize questions and opens the first round.
func (r *Room) Start(actorID string, rnd *rand.Rand, now time.Time) error {
	if !r.IsAdmin(actorID) {
		return ErrNotAdmin
	}
	if r.Status != StatusWaiting {
		return ErrRoomAlreadyStarted
	}
	if !r.CanStart() {
		return ErrNotEnoughPlayers
	}
	if len(r.Questions) < r.StackSize || r.StackSize < 1 {
		return ErrNotEnoughQuestions
	}
	r.Questions = SampleQuestions(r.Questions, r.StackSize, rnd)
	r.CurrentQuestionIndex = 0
	r.Status = StatusInProgress
	started := now
	r.StartedAt = &started
	return nil
}

// SampleQuestions draws k references without replacement. rnd.Perm is a
// uniform permutation, so both the chosen subset and its order are uniform.
func SampleQuestions(refs []string, k int, rnd *rand.Rand) []string {
	perm := rnd.Perm(len(refs))
	out := make([]string, 0, k)
	for _, idx := range perm[:k] {
		out = append(out, refs[idx])
	}
	return out
}

// Advance moves the cursor forward by one. It reports completed when the
// cursor ran past the last question; the room is then closed for good and any
// further Advance fails with ErrRoomNotInProgress.
func (r *Room) Advance(actorID string, now time.Time) (completed bool, err error) {
	if !r.IsAdmin(actorID) {
		return false, ErrNotAdmin
	}
	if r.Status != StatusInProgress {
		return false, ErrRoomNotInProgress
	}
	next := r.CurrentQuestionIndex + 1
	if next >= len(r.Questions) {
		r.Status = StatusCompleted
		done := now
		r.CompletedAt = &done
		return true, nil
	}
	r.CurrentQuestionIndex = next
	return false, nil
}

// CheckAnswerable validates a submission against the room state without mutating it.
func (r *Room) CheckAnswerable(connectionID string, questionIndex int) (*Participant, error) {
	if r.Status != StatusInProgress {
		return nil, ErrRoomNotInProgress
	}
	p, ok := r.Participant(connectionID)
	if !ok {
		return nil, ErrParticipantNotFound
	}
	if questionIndex < 0 || questionIndex >= len(r.Questions) {
		return nil, ErrQuestionNotFound
	}
	if questionIndex > r.CurrentQuestionIndex {
		return nil, ErrQuestionNotOpen
	}
	if p.HasAnswered(questionIndex) {
		return nil, ErrDuplicateAnswer
	}
	return p, nil
}

// Roster lists participants in join order.
func (r *Room) Roster() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, RosterEntry{Name: p.Name, RollNo: p.RollNo})
	}
	return out
}

// Ranking sorts participants by score descending; ties keep join order.
func (r *Room) Ranking() []RankingEntry {
	out := make([]RankingEntry, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, RankingEntry{
			Name:           p.Name,
			RollNo:         p.RollNo,
			Score:          p.Score,
			TotalQuestions: len(r.Questions),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	c := *r
	c.Questions = append([]string(nil), r.Questions...)
	c.Participants = make([]Participant, len(r.Participants))
	for i, p := range r.Participants {
		p.Answers = append([]AnswerRecord{}, p.Answers...)
		c.Participants[i] = p
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
