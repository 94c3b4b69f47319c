package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"podium-backend/internal/room"
)

// ConnectionManager owns every WebSocket connection and the per-room
// channels broadcasts fan out to. Delivery is asynchronous through a
// buffered channel so the room core (countdown ticks included) never
// blocks on a slow client.
type ConnectionManager struct {
	mu              sync.RWMutex
	connections     map[string]*Connection
	roomConnections map[string]map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage

	// onMessage and onDisconnect are set by the handler before any
	// connection is accepted.
	onMessage    func(c *Connection, data []byte)
	onDisconnect func(connID string)
}

// Connection represents one WebSocket client.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcastMessage routes an event to a whole room channel or, when ConnID
// is set, to a single connection.
type broadcastMessage struct {
	RoomCode string
	ConnID   string
	Event    *room.Event
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections:     make(map[string]*Connection),
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// assigns it a fresh connection identity.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.mu.Lock()
	cm.connections[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().Str("connection_id", connection.ID).Msg("WebSocket connection established")
	return connection, nil
}

// JoinRoomChannel subscribes a connection to a room's broadcasts. A
// connection belongs to at most one room channel; joining another room
// moves it.
func (cm *ConnectionManager) JoinRoomChannel(connID, roomCode string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.connections[connID]
	if !ok {
		return
	}
	for code, pool := range cm.roomConnections {
		if pool[conn] {
			delete(pool, conn)
			if len(pool) == 0 {
				delete(cm.roomConnections, code)
			}
		}
	}
	if cm.roomConnections[roomCode] == nil {
		cm.roomConnections[roomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomCode][conn] = true

	log.Debug().
		Str("connection_id", connID).
		Str("room_code", roomCode).
		Int("room_connections", len(cm.roomConnections[roomCode])).
		Msg("connection joined room channel")
}

// unregisterConnection removes a connection from the manager and its room
// channel.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn.ID]; !exists {
		return
	}
	delete(cm.connections, conn.ID)
	close(conn.Send)

	for code, pool := range cm.roomConnections {
		if pool[conn] {
			delete(pool, conn)
			if len(pool) == 0 {
				delete(cm.roomConnections, code)
			}
		}
	}

	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
}

// BroadcastToRoom sends an event to every connection in a room channel.
// Implements room.Broadcaster.
func (cm *ConnectionManager) BroadcastToRoom(roomCode string, event *room.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{RoomCode: roomCode, Event: event}:
	default:
		log.Warn().Str("room_code", roomCode).Msg("broadcast channel full, dropping message")
	}
}

// SendToConnection sends an event to a single connection. Implements
// room.Broadcaster.
func (cm *ConnectionManager) SendToConnection(connID string, event *room.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{ConnID: connID, Event: event}:
	default:
		log.Warn().Str("connection_id", connID).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes one queued broadcast. Sends happen under the
// read lock: unregisterConnection closes Send under the write lock, so no
// send here can race that close. Slow connections are collected and torn
// down after the lock is released (unregister needs the write lock).
func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.RLock()
	var targets []*Connection
	if message.ConnID != "" {
		if conn, ok := cm.connections[message.ConnID]; ok {
			targets = append(targets, conn)
		}
	} else {
		for conn := range cm.roomConnections[message.RoomCode] {
			targets = append(targets, conn)
		}
	}

	var slow []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	if len(targets) == 0 {
		return
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_code", message.Event.RoomCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// Stats returns counts of active connections and room channels.
func (cm *ConnectionManager) Stats() (totalConnections, activeRooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections), len(cm.roomConnections)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection. Its
// exit is the disconnect notification for the whole connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if c.Manager.onDisconnect != nil {
			c.Manager.onDisconnect(c.ID)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.onMessage != nil {
			c.Manager.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
