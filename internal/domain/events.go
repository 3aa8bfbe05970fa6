package domain

// Outbound event types.
const (
	EventJoined            = "joined"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventAdminEligibility  = "admin-eligibility"
	EventRoundStarted      = "round-started"
	EventNextRound         = "next-round"
	EventAnswerResult      = "answer-result"
	EventRoundFinished     = "round-finished"
	EventRoomDeleted       = "room-deleted"
	EventQuitSuccess       = "quit-success"
	EventError             = "error"
)

// Event is one outbound message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinedPayload struct {
	RoomCode        string        `json:"roomCode"`
	ConnectionID    string        `json:"connectionId"`
	Participants    []RosterEntry `json:"participants"`
	RequiredPlayers int           `json:"requiredPlayers"`
	StackSize       int           `json:"stackSize"`
	IsAdmin         bool          `json:"isAdmin"`
}

type ParticipantJoinedPayload struct {
	Name              string `json:"name"`
	RollNo            string `json:"rollNo,omitempty"`
	TotalParticipants int    `json:"totalParticipants"`
	RequiredPlayers   int    `json:"requiredPlayers"`
}

type ParticipantLeftPayload struct {
	Name              string        `json:"name"`
	RollNo            string        `json:"rollNo,omitempty"`
	TotalParticipants int           `json:"totalParticipants"`
	Participants      []RosterEntry `json:"participants"`
}

type AdminEligibilityPayload struct {
	CanStart bool `json:"canStart"`
}

// RoundPayload announces a question. The correct answer is never included.
type RoundPayload struct {
	QuestionIndex  int          `json:"questionIndex"`
	Text           string       `json:"text"`
	Kind           QuestionKind `json:"kind"`
	Options        []string     `json:"options,omitempty"`
	TotalQuestions int          `json:"totalQuestions"`
}

type AnswerResultPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Score         *int   `json:"score,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
}

type RoundFinishedPayload struct {
	Ranking []RankingEntry `json:"ranking"`
}

type RoomDeletedPayload struct {
	Reason string `json:"reason"`
}

type QuitSuccessPayload struct {
	RoomCode string `json:"roomCode"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`
}

// NewRoundPayload builds the public view of the question at index.
func NewRoundPayload(index int, q Question, total int) RoundPayload {
	return RoundPayload{
		QuestionIndex:  index,
		Text:           q.Text,
		Kind:           q.Kind,
		Options:        q.Options,
		TotalQuestions: total,
	}
}

// ErrorEvent renders err as the error event sent to a requester.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: err.Error(), Kind: KindOf(err)}}
}
