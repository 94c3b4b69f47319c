package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"podium-backend/internal/room"
)

// PublisherConfig holds configuration for the NATS event mirror.
type PublisherConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultPublisherConfig returns default NATS publisher configuration.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "room.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventPublisher mirrors every outbound room event onto NATS so external
// consumers can observe sessions without holding a WebSocket. The
// in-process broadcast path never depends on it.
type EventPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewEventPublisher connects to NATS with reconnect handling.
func NewEventPublisher(config PublisherConfig) (*EventPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	prefix := config.SubjectPrefix
	if prefix == "" {
		prefix = "room.events"
	}

	log.Info().Str("url", config.URL).Str("subject_prefix", prefix).Msg("room event mirror enabled")
	return &EventPublisher{nc: nc, prefix: prefix}, nil
}

// Publish mirrors one event. Publish failures are logged, never surfaced:
// the mirror must not affect room operations.
func (p *EventPublisher) Publish(event *room.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for NATS")
		return
	}
	if err := p.nc.Publish(subjectFor(p.prefix, event.RoomCode), data); err != nil {
		log.Error().Err(err).Str("room_code", event.RoomCode).Msg("failed to publish event to NATS")
	}
}

// Close drains and closes the NATS connection.
func (p *EventPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// subjectFor maps a room code onto the mirror subject. Events without a
// room code (e.g. errors before a room exists) land on the bare prefix.
func subjectFor(prefix, roomCode string) string {
	if roomCode == "" {
		return prefix
	}
	return prefix + "." + roomCode
}
