package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler wires websocket connections into the battle room use cases. One
// connection belongs to at most one room at a time.
type WSHandler struct {
	service  *app.BattleService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createPayload struct {
	Settings domain.RoomSettings `json:"settings"`
}

type joinPayload struct {
	InviteToken string `json:"inviteToken"`
}

type resumePayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

type answerPayload struct {
	QuizIndex int              `json:"quizIndex"`
	Answer    domain.RawAnswer `json:"answer"`
}

type joinedPayload struct {
	RoomID        string `json:"roomId"`
	InviteToken   string `json:"inviteToken"`
	ParticipantID string `json:"participantId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// connState tracks the room membership of one websocket connection.
type connState struct {
	room          *app.Room
	participantID string
	outbox        chan domain.ServerEvent
	pumpDone      chan struct{}
}

// ServeWS upgrades the request and processes room lifecycle commands until the
// connection drops. A drop while in a room is reported to the room as a
// disconnect, never as an explicit leave.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan any, 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	info := app.JoinInfo{UserID: userID, DisplayName: displayName}
	var state *connState

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		state = h.dispatch(r, send, closeSignals, state, info, inbound)
	}

	if state != nil {
		h.service.Disconnect(state.room.ID, state.participantID)
		<-state.pumpDone
	}
	close(closeSignals)
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, send chan any, closeSignals chan struct{}, state *connState, info app.JoinInfo, inbound inboundMessage) *connState {
	ctx := r.Context()
	fail := func(err error) {
		send <- outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	switch inbound.Type {
	case "create":
		if state != nil {
			fail(errors.New("already in a room"))
			return state
		}
		var payload createPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errors.New("invalid create payload"))
			return state
		}
		outbox := make(chan domain.ServerEvent, 16)
		room, participantID, err := h.service.CreateRoom(ctx, info, payload.Settings, outbox)
		if err != nil {
			fail(err)
			return state
		}
		return h.attached(send, closeSignals, room, participantID, outbox)

	case "join":
		if state != nil {
			fail(errors.New("already in a room"))
			return state
		}
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errors.New("invalid join payload"))
			return state
		}
		outbox := make(chan domain.ServerEvent, 16)
		room, participantID, err := h.service.JoinRoom(ctx, payload.InviteToken, info, outbox)
		if err != nil {
			fail(err)
			return state
		}
		return h.attached(send, closeSignals, room, participantID, outbox)

	case "resume":
		if state != nil {
			fail(errors.New("already in a room"))
			return state
		}
		var payload resumePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errors.New("invalid resume payload"))
			return state
		}
		outbox := make(chan domain.ServerEvent, 16)
		room, err := h.service.ResumeRoom(ctx, payload.RoomID, payload.ParticipantID, outbox)
		if err != nil {
			fail(err)
			return state
		}
		return h.attached(send, closeSignals, room, payload.ParticipantID, outbox)

	case "updateSettings":
		if state == nil {
			fail(errors.New("not in a room"))
			return state
		}
		var patch domain.SettingsPatch
		if err := json.Unmarshal(inbound.Payload, &patch); err != nil {
			fail(errors.New("invalid settings payload"))
			return state
		}
		err := h.service.UpdateSettings(ctx, state.room.ID, state.participantID, patch)
		// Non-host setting attempts are dropped without a reply.
		if err != nil && !errors.Is(err, domain.ErrNotHost) {
			fail(err)
		}
		return state

	case "start":
		if state == nil {
			fail(errors.New("not in a room"))
			return state
		}
		if err := h.service.Start(ctx, state.room.ID, state.participantID); err != nil {
			fail(err)
		}
		return state

	case "submitAnswer":
		if state == nil {
			fail(errors.New("not in a room"))
			return state
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errors.New("invalid answer payload"))
			return state
		}
		if err := h.service.SubmitAnswer(ctx, state.room.ID, state.participantID, payload.QuizIndex, payload.Answer); err != nil {
			fail(err)
		}
		return state

	case "leave":
		if state == nil {
			fail(errors.New("not in a room"))
			return state
		}
		if err := h.service.Leave(ctx, state.room.ID, state.participantID); err != nil {
			fail(err)
		}
		<-state.pumpDone
		return nil

	default:
		fail(errors.New("unsupported message type"))
		return state
	}
}

// attached acknowledges the membership and starts pumping room events into the
// connection's writer until the room closes the outbox.
func (h *WSHandler) attached(send chan any, closeSignals chan struct{}, room *app.Room, participantID string, outbox chan domain.ServerEvent) *connState {
	state := &connState{
		room:          room,
		participantID: participantID,
		outbox:        outbox,
		pumpDone:      make(chan struct{}),
	}
	send <- outboundMessage[joinedPayload]{Type: "joined", Payload: joinedPayload{
		RoomID:        room.ID,
		InviteToken:   room.InviteToken,
		ParticipantID: participantID,
	}}

	go func() {
		defer close(state.pumpDone)
		for {
			select {
			case ev, ok := <-outbox:
				if !ok {
					return
				}
				select {
				case send <- ev:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return state
}
