package room

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType names an outbound room event. The values are the wire-level
// event names the frontend listens for.
type EventType string

const (
	EventTypeRoomCreated     EventType = "roomCreated"
	EventTypeRoomState       EventType = "updateRoomState"
	EventTypeError           EventType = "error"
	EventTypeTimerWarning    EventType = "timerWarning"
	EventTypePhaseTransition EventType = "phaseTransition"
	EventTypeTimerCompleted  EventType = "timerCompleted"
)

// Event is the envelope for every outbound message.
type Event struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"roomCode"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RoomCreatedPayload is sent to the creator once a room exists.
type RoomCreatedPayload struct {
	RoomCode string `json:"roomCode"`
}

// TimerWarningPayload is emitted when the countdown crosses a warning
// threshold. Phase is the phase the warning fired in.
type TimerWarningPayload struct {
	RemainingTime int   `json:"remainingTime"`
	Phase         Phase `json:"phase"`
}

// PhaseTransitionPayload announces a phase change, both timer-driven and
// host-forced.
type PhaseTransitionPayload struct {
	Phase Phase `json:"phase"`
}

// ErrorPayload carries an operation failure back to the originator.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEvent builds an event envelope, marshalling the payload. A payload
// that fails to marshal is a programming error; the event is still emitted
// with empty data so clients at least see the type.
func NewEvent(roomCode string, typ EventType, ts time.Time, payload any) *Event {
	ev := &Event{
		ID:        uuid.New().String(),
		RoomCode:  roomCode,
		Type:      typ,
		Timestamp: ts,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal event payload")
			return ev
		}
		ev.Data = data
	}
	return ev
}

// Broadcaster delivers events to connected clients. The gateway implements
// it; delivery must not block the caller (slow consumers are the
// transport's problem, not the room core's).
type Broadcaster interface {
	// BroadcastToRoom sends an event to every connection joined to the room.
	BroadcastToRoom(roomCode string, event *Event)
	// SendToConnection sends an event to a single connection.
	SendToConnection(connID string, event *Event)
}
