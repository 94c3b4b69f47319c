package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"podium-backend/internal/room"
)

// Inbound event names accepted over the socket.
const (
	cmdCreateRoom       = "createRoom"
	cmdJoinRoom         = "joinRoom"
	cmdAddCheckpoint    = "addCheckpoint"
	cmdRemoveCheckpoint = "removeCheckpoint"
	cmdStartTimer       = "startTimer"
	cmdPauseTimer       = "pauseTimer"
	cmdToggleReady      = "toggleReady"
	cmdUpdateDuration   = "updateDuration"
	cmdSkipToQuestions  = "skipToQuestions"
	cmdResetRoomPhase   = "resetRoomPhase"
	cmdToggleLock       = "toggleLock"
	cmdReconnect        = "reconnect"
	cmdDisconnect       = "disconnect"
)

// command is the inbound message envelope.
type command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type createRoomPayload struct {
	RoomName      string `json:"roomName"`
	UserName      string `json:"userName"`
	TotalDuration int    `json:"totalDuration"`
}

type joinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	UserName string `json:"userName"`
}

type addCheckpointPayload struct {
	Name          string `json:"name"`
	TimeInSeconds int    `json:"timeInSeconds"`
	Note          string `json:"note"`
}

type removeCheckpointPayload struct {
	ID string `json:"id"`
}

type roomCodePayload struct {
	RoomCode string `json:"roomCode"`
}

type updateDurationPayload struct {
	RoomCode string `json:"roomCode"`
	Minutes  int    `json:"minutes"`
	Phase    string `json:"phase"`
}

// Handler accepts WebSocket connections and dispatches inbound events to
// the room service.
type Handler struct {
	manager *ConnectionManager
	rooms   *room.Service
}

// NewHandler wires the handler into the connection manager's message and
// disconnect callbacks.
func NewHandler(manager *ConnectionManager, rooms *room.Service) *Handler {
	h := &Handler{manager: manager, rooms: rooms}
	manager.onMessage = h.dispatch
	manager.onDisconnect = rooms.Disconnect
	return h
}

// HandleConnection handles WebSocket upgrade requests.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if _, err := h.manager.UpgradeConnection(w, r); err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

// dispatch routes one inbound message. A fault in any handler is contained
// here: it is logged, reported to the originator, and cannot disturb other
// rooms or connections.
func (h *Handler) dispatch(c *Connection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("connection_id", c.ID).Msg("panic in event handler")
			h.sendError(c, "", "internal error handling event")
		}
	}()

	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.sendError(c, "", "malformed message")
		return
	}

	var err error
	var roomCode string

	switch cmd.Type {
	case cmdCreateRoom:
		var p createRoomPayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			var code string
			if code, err = h.rooms.CreateRoom(c.ID, p.RoomName, p.UserName, p.TotalDuration); err == nil {
				h.manager.JoinRoomChannel(c.ID, code)
			}
		}

	case cmdJoinRoom:
		var p joinRoomPayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			if err = h.rooms.Join(c.ID, p.RoomCode, p.UserName); err == nil {
				h.manager.JoinRoomChannel(c.ID, p.RoomCode)
			}
		}

	case cmdAddCheckpoint:
		var p addCheckpointPayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			err = h.rooms.AddCheckpoint(c.ID, p.Name, p.TimeInSeconds, p.Note)
		}

	case cmdRemoveCheckpoint:
		var p removeCheckpointPayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			err = h.rooms.RemoveCheckpoint(c.ID, p.ID)
		}

	case cmdStartTimer:
		var p roomCodePayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.StartTimer(c.ID, p.RoomCode)
		}

	case cmdPauseTimer:
		var p roomCodePayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.PauseTimer(c.ID, p.RoomCode)
		}

	case cmdToggleReady:
		var p roomCodePayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.ToggleReady(c.ID, p.RoomCode)
		}

	case cmdUpdateDuration:
		var p updateDurationPayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.UpdateDuration(c.ID, p.RoomCode, p.Minutes, room.Phase(p.Phase))
		}

	case cmdSkipToQuestions:
		var p roomCodePayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.SkipToQuestions(c.ID, p.RoomCode)
		}

	case cmdResetRoomPhase:
		var p roomCodePayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.ResetRoomPhase(c.ID, p.RoomCode)
		}

	case cmdToggleLock:
		var p roomCodePayload
		if err = json.Unmarshal(cmd.Data, &p); err == nil {
			roomCode = p.RoomCode
			err = h.rooms.ToggleLock(c.ID, p.RoomCode)
		}

	case cmdReconnect:
		// Only effective when the socket kept its connection id
		// (transport-level resume). A fresh socket has no binding yet;
		// those clients recover by re-issuing joinRoom, which rebinds
		// the participant by name and cancels the grace timer itself.
		h.rooms.Reconnect(c.ID)

	case cmdDisconnect:
		h.rooms.Disconnect(c.ID)

	default:
		h.sendError(c, "", "unknown event type: "+cmd.Type)
		return
	}

	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("event_type", cmd.Type).
			Msg("event handling failed")
		h.sendError(c, roomCode, err.Error())
	}
}

// sendError reports an operation failure to the originating connection
// only; failed operations never broadcast.
func (h *Handler) sendError(c *Connection, roomCode, message string) {
	ev := room.NewEvent(roomCode, room.EventTypeError, time.Now(), room.ErrorPayload{Message: message})
	h.manager.SendToConnection(c.ID, ev)
}
