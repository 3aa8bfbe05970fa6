package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/registry"
)

const (
	inboundJoin         = "join"
	inboundStart        = "start"
	inboundSubmitAnswer = "submit-answer"
	inboundAdvance      = "advance"
	inboundQuit         = "quit"
	inboundDeleteRoom   = "delete-room"

	defaultSendBuffer = 64
	defaultOpTimeout  = 15 * time.Second

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxFrameSize = 64 * 1024
)

// Coordinator is the set of room operations reachable from a socket.
type Coordinator interface {
	Join(ctx context.Context, peer registry.Peer, req app.JoinRequest) (string, error)
	Start(ctx context.Context, peer registry.Peer, req app.StartRequest) error
	SubmitAnswer(ctx context.Context, peer registry.Peer, req app.SubmitRequest) error
	Advance(ctx context.Context, peer registry.Peer, req app.AdvanceRequest) error
	Quit(ctx context.Context, peer registry.Peer, req app.QuitRequest) error
	DeleteRoom(ctx context.Context, peer registry.Peer, req app.DeleteRequest) error
	Disconnect(ctx context.Context, connectionID string)
}

type WSHandler struct {
	coord      Coordinator
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	sendBuffer int
	opTimeout  time.Duration
}

// WSOptions tunes per-connection resources. Zero values pick defaults.
type WSOptions struct {
	SendBuffer int
	OpTimeout  time.Duration
}

func NewWSHandler(coord Coordinator, logger *zap.Logger, opts WSOptions) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	return &WSHandler{
		coord:  coord,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuffer: opts.SendBuffer,
		opTimeout:  opts.OpTimeout,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// submitPayload accepts the answer as a JSON string or number.
type submitPayload struct {
	RoomCode      string          `json:"roomCode"`
	ConnectionID  string          `json:"connectionId"`
	QuestionIndex *int            `json:"questionIndex"`
	Answer        json.RawMessage `json:"answer"`
	TimeTaken     float64         `json:"timeTaken"`
}

// peer is the registry-facing side of one socket. Send never blocks: when
// the buffer is full or the socket is gone the event is dropped.
type peer struct {
	send      chan domain.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newPeer(buffer int) *peer {
	return &peer{
		send:   make(chan domain.Event, buffer),
		closed: make(chan struct{}),
	}
}

func (p *peer) Send(ev domain.Event) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.send <- ev:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// ServeWS upgrades HTTP requests to websockets and dispatches control messages
// to the coordinator until the socket closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	p := newPeer(h.sendBuffer)
	writerDone := make(chan struct{})
	go h.writePump(conn, p, writerDone)

	// Connection ids joined through this socket; each is cleaned up on close.
	var joined []string
	defer func() {
		p.close()
		<-writerDone
		for _, connID := range joined {
			go func(id string) {
				ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
				defer cancel()
				h.coord.Disconnect(ctx, id)
			}(connID)
		}
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		connID, err := h.dispatch(r.Context(), p, inbound)
		if err != nil {
			h.logger.Debug("request rejected",
				zap.String("type", inbound.Type),
				zap.String("kind", string(domain.KindOf(err))),
				zap.Error(err))
			p.Send(domain.ErrorEvent(err))
			continue
		}
		if connID != "" {
			joined = append(joined, connID)
		}
	}
}

func (h *WSHandler) dispatch(parent context.Context, p *peer, msg inboundMessage) (string, error) {
	ctx, cancel := context.WithTimeout(parent, h.opTimeout)
	defer cancel()

	switch msg.Type {
	case inboundJoin:
		var req app.JoinRequest
		if err := decode(msg.Payload, &req); err != nil {
			return "", err
		}
		return h.coord.Join(ctx, p, req)
	case inboundStart:
		var req app.StartRequest
		if err := decode(msg.Payload, &req); err != nil {
			return "", err
		}
		return "", h.coord.Start(ctx, p, req)
	case inboundSubmitAnswer:
		var payload submitPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return "", err
		}
		if payload.QuestionIndex == nil {
			return "", domain.Validation("questionIndex is required")
		}
		answer, err := decodeAnswer(payload.Answer)
		if err != nil {
			return "", err
		}
		return "", h.coord.SubmitAnswer(ctx, p, app.SubmitRequest{
			RoomCode:      payload.RoomCode,
			ConnectionID:  payload.ConnectionID,
			QuestionIndex: *payload.QuestionIndex,
			Answer:        answer,
			TimeTaken:     payload.TimeTaken,
		})
	case inboundAdvance:
		var req app.AdvanceRequest
		if err := decode(msg.Payload, &req); err != nil {
			return "", err
		}
		return "", h.coord.Advance(ctx, p, req)
	case inboundQuit:
		var req app.QuitRequest
		if err := decode(msg.Payload, &req); err != nil {
			return "", err
		}
		return "", h.coord.Quit(ctx, p, req)
	case inboundDeleteRoom:
		var req app.DeleteRequest
		if err := decode(msg.Payload, &req); err != nil {
			return "", err
		}
		return "", h.coord.DeleteRoom(ctx, p, req)
	default:
		return "", domain.Validation("unsupported message type %q", msg.Type)
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, p *peer, done chan<- struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case ev := <-p.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				p.close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				_ = conn.Close()
				return
			}
		case <-p.closed:
			return
		}
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return domain.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Validation("invalid payload: %v", err)
	}
	return nil
}

// decodeAnswer renders an option index or a free-text answer as a string.
func decodeAnswer(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", domain.Validation("answer is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", domain.Validation("invalid answer: %v", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", domain.Validation("answer must be a string or a number")
	}
	return n.String(), nil
}
