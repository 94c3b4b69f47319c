package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"podium-backend/internal/room"
)

// Service ties the gateway together: WebSocket handler, broadcast
// dispatcher, diagnostic read surface, and the optional NATS mirror.
type Service struct {
	manager   *ConnectionManager
	handler   *Handler
	state     *StateHandler
	publisher *EventPublisher
}

// NewService wires the handler callbacks into the connection manager.
// publisher may be nil.
func NewService(manager *ConnectionManager, rooms *room.Service, publisher *EventPublisher) *Service {
	return &Service{
		manager:   manager,
		handler:   NewHandler(manager, rooms),
		state:     NewStateHandler(rooms.Registry()),
		publisher: publisher,
	}
}

// Start runs the broadcast dispatcher until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.manager.Start(ctx)
	s.Stop()
}

// Stop releases external resources.
func (s *Service) Stop() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	log.Info().Msg("gateway service stopped")
}

// RegisterRoutes registers the WebSocket and HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handler.HandleConnection)
	mux.HandleFunc("/debug/rooms", s.state.HandleListRooms)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	log.Info().Msg("gateway routes registered")
}

// Fanout is the room.Broadcaster the room core is wired to: in-process
// WebSocket delivery always, NATS mirror when configured.
type Fanout struct {
	manager   *ConnectionManager
	publisher *EventPublisher
}

// NewFanout builds the broadcaster. publisher may be nil.
func NewFanout(manager *ConnectionManager, publisher *EventPublisher) *Fanout {
	return &Fanout{manager: manager, publisher: publisher}
}

func (f *Fanout) BroadcastToRoom(roomCode string, event *room.Event) {
	f.manager.BroadcastToRoom(roomCode, event)
	if f.publisher != nil {
		f.publisher.Publish(event)
	}
}

func (f *Fanout) SendToConnection(connID string, event *room.Event) {
	f.manager.SendToConnection(connID, event)
	if f.publisher != nil {
		f.publisher.Publish(event)
	}
}
