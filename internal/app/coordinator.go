package app

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/registry"
)

const roomDeletedByAdmin = "Room has been deleted by admin"

// Dependencies wires the coordinator to its collaborators.
type Dependencies struct {
	Rooms     RoomStore
	Questions QuestionRepository
	Stats     StatsStore
	Sessions  SessionRepository
	Registry  Broadcaster
	Evaluator AnswerEvaluator
	Logger    *zap.Logger
	Clock     func() time.Time
	Rand      *rand.Rand
}

// Coordinator dispatches inbound control messages. Every operation that
// touches a room runs inside that room's Session, so read-modify-persist
// cycles on one room never interleave.
type Coordinator struct {
	rooms     RoomStore
	questions QuestionRepository
	stats     StatsStore
	sessions  SessionRepository
	registry  Broadcaster
	evaluator AnswerEvaluator
	logger    *zap.Logger
	now       func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCoordinator(deps Dependencies) *Coordinator {
	c := &Coordinator{
		rooms:     deps.Rooms,
		questions: deps.Questions,
		stats:     deps.Stats,
		sessions:  deps.Sessions,
		registry:  deps.Registry,
		evaluator: deps.Evaluator,
		logger:    deps.Logger,
		now:       deps.Clock,
		rnd:       deps.Rand,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

type JoinRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
	RollNo   string `json:"rollNo"`
	UserID   string `json:"userId"`
}

type StartRequest struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

type SubmitRequest struct {
	RoomCode      string  `json:"roomCode"`
	ConnectionID  string  `json:"connectionId"`
	QuestionIndex int     `json:"questionIndex"`
	Answer        string  `json:"answer"`
	TimeTaken     float64 `json:"timeTaken"`
}

type AdvanceRequest struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

type QuitRequest struct {
	RoomCode     string `json:"roomCode"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type DeleteRequest struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

// Join adds a participant to a waiting room, registers its connection and
// returns the connection id the participant is known by.
func (c *Coordinator) Join(ctx context.Context, peer registry.Peer, req JoinRequest) (string, error) {
	code := normalizeCode(req.RoomCode)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return "", domain.Validation("roomCode and name are required")
	}

	var connID string
	err := c.withRoom(ctx, code, func() error {
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}
		id := c.registry.NewConnectionID()
		participant := domain.Participant{
			UserID:       req.UserID,
			Name:         name,
			RollNo:       strings.TrimSpace(req.RollNo),
			ConnectionID: id,
		}
		if err := room.Join(participant); err != nil {
			return err
		}
		if err := c.saveRoom(ctx, room); err != nil {
			return err
		}
		connID = id

		isAdmin := room.IsAdmin(req.UserID)
		c.registry.Register(code, connID, req.UserID, isAdmin, peer)

		reply(peer, domain.Event{Type: domain.EventJoined, Payload: domain.JoinedPayload{
			RoomCode:        code,
			ConnectionID:    connID,
			Participants:    room.Roster(),
			RequiredPlayers: room.RequiredPlayers,
			StackSize:       room.StackSize,
			IsAdmin:         isAdmin,
		}})
		c.registry.Broadcast(code, connID, domain.Event{Type: domain.EventParticipantJoined, Payload: domain.ParticipantJoinedPayload{
			Name:              participant.Name,
			RollNo:            participant.RollNo,
			TotalParticipants: len(room.Participants),
			RequiredPlayers:   room.RequiredPlayers,
		}})
		c.announceEligibility(room)

		c.logger.Info("participant joined",
			zap.String("room", code),
			zap.String("connection_id", connID),
			zap.Int("participants", len(room.Participants)),
			zap.Bool("admin", isAdmin))
		return nil
	})
	if err != nil {
		return "", err
	}
	return connID, nil
}

// Start samples the room's questions and broadcasts the first round.
func (c *Coordinator) Start(ctx context.Context, _ registry.Peer, req StartRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" {
		return domain.Validation("roomCode is required")
	}

	return c.withRoom(ctx, code, func() error {
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}
		c.rndMu.Lock()
		err = room.Start(req.UserID, c.rnd, c.now())
		c.rndMu.Unlock()
		if err != nil {
			return err
		}
		first, err := c.question(ctx, room, 0)
		if err != nil {
			return err
		}
		if err := c.saveRoom(ctx, room); err != nil {
			return err
		}

		c.registry.Broadcast(code, "", domain.Event{
			Type:    domain.EventRoundStarted,
			Payload: domain.NewRoundPayload(0, first, len(room.Questions)),
		})
		c.logger.Info("game started",
			zap.String("room", code),
			zap.Int("questions", len(room.Questions)),
			zap.Int("participants", len(room.Participants)))
		return nil
	})
}

// SubmitAnswer evaluates and records one answer. Validation and recording run
// inside the room session; the evaluation between them does not, so a slow
// scorer never holds up the rest of the room. The second pass re-validates,
// which makes the duplicate-answer guard discard any competing evaluation.
func (c *Coordinator) SubmitAnswer(ctx context.Context, peer registry.Peer, req SubmitRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" || req.ConnectionID == "" {
		return domain.Validation("roomCode and connectionId are required")
	}
	if req.QuestionIndex < 0 {
		return domain.Validation("questionIndex must be non-negative")
	}
	if req.TimeTaken < 0 {
		return domain.Validation("timeTaken must be non-negative")
	}

	var question domain.Question
	err := c.withRoom(ctx, code, func() error {
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}
		if _, err := room.CheckAnswerable(req.ConnectionID, req.QuestionIndex); err != nil {
			return err
		}
		question, err = c.question(ctx, room, req.QuestionIndex)
		return err
	})
	if err != nil {
		return err
	}

	outcome := c.evaluator.Evaluate(ctx, question, req.Answer)

	return c.withRoom(ctx, code, func() error {
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}
		participant, err := room.CheckAnswerable(req.ConnectionID, req.QuestionIndex)
		if err != nil {
			return err
		}
		record := domain.AnswerRecord{
			QuestionIndex: req.QuestionIndex,
			Answer:        req.Answer,
			TimeTaken:     req.TimeTaken,
		}
		if err := participant.RecordAnswer(record, outcome.Points); err != nil {
			return err
		}
		if err := c.saveRoom(ctx, room); err != nil {
			return err
		}

		reply(peer, domain.Event{Type: domain.EventAnswerResult, Payload: domain.AnswerResultPayload{
			QuestionIndex: req.QuestionIndex,
			IsCorrect:     outcome.IsCorrect,
			CorrectAnswer: outcome.CorrectAnswer,
			Score:         outcome.Score,
			Feedback:      outcome.Feedback,
		}})
		c.logger.Debug("answer recorded",
			zap.String("room", code),
			zap.String("connection_id", req.ConnectionID),
			zap.Int("question_index", req.QuestionIndex),
			zap.Bool("correct", outcome.IsCorrect),
			zap.Float64("points", outcome.Points),
			zap.Bool("fallback", outcome.Fallback))
		return nil
	})
}

// Advance moves to the next question, or completes the room after the last one.
func (c *Coordinator) Advance(ctx context.Context, _ registry.Peer, req AdvanceRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" {
		return domain.Validation("roomCode is required")
	}

	return c.withRoom(ctx, code, func() error {
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}
		completed, err := room.Advance(req.UserID, c.now())
		if err != nil {
			return err
		}

		if !completed {
			next, err := c.question(ctx, room, room.CurrentQuestionIndex)
			if err != nil {
				return err
			}
			if err := c.saveRoom(ctx, room); err != nil {
				return err
			}
			c.registry.Broadcast(code, "", domain.Event{
				Type:    domain.EventNextRound,
				Payload: domain.NewRoundPayload(room.CurrentQuestionIndex, next, len(room.Questions)),
			})
			return nil
		}

		// Persisting the completed status is the one gate for stats: a room
		// that is already completed can never reach this point again.
		if err := c.saveRoom(ctx, room); err != nil {
			return err
		}
		c.recordStats(ctx, room)
		c.registry.Broadcast(code, "", domain.Event{
			Type:    domain.EventRoundFinished,
			Payload: domain.RoundFinishedPayload{Ranking: room.Ranking()},
		})
		c.logger.Info("game completed", zap.String("room", code), zap.Int("participants", len(room.Participants)))
		return nil
	})
}

// Quit handles an explicit leave. An admin quitting deletes the room.
func (c *Coordinator) Quit(ctx context.Context, peer registry.Peer, req QuitRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" || req.ConnectionID == "" {
		return domain.Validation("roomCode and connectionId are required")
	}

	return c.withRoom(ctx, code, func() error {
		entry, ok := c.registry.Lookup(req.ConnectionID)
		if !ok || entry.RoomCode != code {
			return domain.ErrConnectionNotFound
		}
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}

		if room.IsAdmin(req.UserID) {
			if err := c.deleteRoom(ctx, code, "", roomDeletedByAdmin); err != nil {
				return err
			}
		} else {
			if err := c.leave(ctx, room, req.ConnectionID); err != nil {
				return err
			}
			c.registry.Unregister(req.ConnectionID)
		}

		reply(peer, domain.Event{Type: domain.EventQuitSuccess, Payload: domain.QuitSuccessPayload{RoomCode: code}})
		return nil
	})
}

// DeleteRoom removes a room in any status on the admin's request.
func (c *Coordinator) DeleteRoom(ctx context.Context, peer registry.Peer, req DeleteRequest) error {
	code := normalizeCode(req.RoomCode)
	if code == "" {
		return domain.Validation("roomCode is required")
	}

	return c.withRoom(ctx, code, func() error {
		room, err := c.loadRoom(ctx, code)
		if err != nil {
			return err
		}
		if !room.IsAdmin(req.UserID) {
			return domain.ErrNotAdmin
		}
		// A requester joined to the room hears the broadcast; anyone else
		// gets the notice directly.
		inRoom := c.registry.HasPeer(code, peer)
		if err := c.deleteRoom(ctx, code, "", roomDeletedByAdmin); err != nil {
			return err
		}
		if !inRoom {
			reply(peer, domain.Event{Type: domain.EventRoomDeleted, Payload: domain.RoomDeletedPayload{Reason: roomDeletedByAdmin}})
		}
		return nil
	})
}

// Disconnect cleans up after a transport closed. There is nobody left to
// answer, so failures are logged only. A disconnect never deletes the room.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	entry, ok := c.registry.Unregister(connectionID)
	if !ok {
		return
	}
	err := c.withRoom(ctx, entry.RoomCode, func() error {
		room, err := c.loadRoom(ctx, entry.RoomCode)
		if err != nil {
			return err
		}
		return c.leave(ctx, room, connectionID)
	})
	if err != nil {
		c.logger.Warn("disconnect cleanup failed",
			zap.String("room", entry.RoomCode),
			zap.String("connection_id", connectionID),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return
	}
	c.logger.Info("participant disconnected", zap.String("room", entry.RoomCode), zap.String("connection_id", connectionID))
}

// Leaderboard returns the global identity ranking.
func (c *Coordinator) Leaderboard(ctx context.Context, limit int) ([]domain.PlayerStats, error) {
	if limit <= 0 {
		limit = 50
	}
	stats, err := c.stats.Top(ctx, limit)
	if err != nil {
		return nil, domain.Persistence("load leaderboard", err)
	}
	return stats, nil
}

// leave applies leave semantics: while waiting the participant is removed and
// the roster change is announced; afterwards the record is kept as-is.
func (c *Coordinator) leave(ctx context.Context, room *domain.Room, connectionID string) error {
	leaving, removed := room.Leave(connectionID)
	if !removed {
		return nil
	}
	if err := c.saveRoom(ctx, room); err != nil {
		return err
	}
	c.registry.Broadcast(room.Code, connectionID, domain.Event{Type: domain.EventParticipantLeft, Payload: domain.ParticipantLeftPayload{
		Name:              leaving.Name,
		RollNo:            leaving.RollNo,
		TotalParticipants: len(room.Participants),
		Participants:      room.Roster(),
	}})
	c.announceEligibility(room)
	return nil
}

func (c *Coordinator) deleteRoom(ctx context.Context, code, exceptID, reason string) error {
	if err := c.rooms.Delete(ctx, code); err != nil {
		return domain.Persistence("delete room", err)
	}
	c.registry.Broadcast(code, exceptID, domain.Event{Type: domain.EventRoomDeleted, Payload: domain.RoomDeletedPayload{Reason: reason}})
	dropped := c.registry.DropRoom(code)
	c.logger.Info("room deleted", zap.String("room", code), zap.Int("dropped_connections", dropped))
	return nil
}

// recordStats adds the room outcome to each durable identity once, even when
// the same identity joined through several connections.
func (c *Coordinator) recordStats(ctx context.Context, room *domain.Room) {
	totals := make(map[string]float64)
	order := make([]string, 0, len(room.Participants))
	for _, p := range room.Participants {
		if p.UserID == "" {
			continue
		}
		if _, seen := totals[p.UserID]; !seen {
			order = append(order, p.UserID)
		}
		totals[p.UserID] += p.Score
	}
	for _, userID := range order {
		if err := c.stats.Increment(ctx, userID, totals[userID]); err != nil {
			c.logger.Error("update player stats",
				zap.String("room", room.Code),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
}

func (c *Coordinator) announceEligibility(room *domain.Room) {
	if room.Status != domain.StatusWaiting {
		return
	}
	c.registry.BroadcastAdmins(room.Code, domain.Event{
		Type:    domain.EventAdminEligibility,
		Payload: domain.AdminEligibilityPayload{CanStart: room.CanStart()},
	})
}

func (c *Coordinator) question(ctx context.Context, room *domain.Room, index int) (domain.Question, error) {
	if index < 0 || index >= len(room.Questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	qs, err := c.questions.GetQuestions(ctx, []string{room.Questions[index]})
	if err != nil {
		return domain.Question{}, domain.Persistence("load question", err)
	}
	if len(qs) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return qs[0], nil
}

func (c *Coordinator) loadRoom(ctx context.Context, code string) (*domain.Room, error) {
	room, err := c.rooms.FindByCode(ctx, code)
	if err != nil {
		return nil, domain.Persistence("load room", err)
	}
	return room, nil
}

func (c *Coordinator) saveRoom(ctx context.Context, room *domain.Room) error {
	if err := c.rooms.Update(ctx, room); err != nil {
		return domain.Persistence("save room", err)
	}
	return nil
}

func (c *Coordinator) withRoom(ctx context.Context, code string, fn func() error) error {
	session := c.sessions.Acquire(code)
	defer c.sessions.Release(session)
	return session.Do(ctx, fn)
}

func reply(peer registry.Peer, ev domain.Event) {
	if peer != nil {
		peer.Send(ev)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
