package room

import (
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	codeLength      = 8
	codeAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
	codeRetryBudget = 100
)

// Registry owns every live room, keyed by code. Rooms are never evicted;
// a stale-room TTL is a known gap, not a feature of this registry.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create constructs a room with a fresh code and a single host participant,
// and registers it. Code collisions are retried with a new code rather than
// surfaced; ErrDuplicateCode escapes only if the retry budget is exhausted.
func (g *Registry) Create(roomName, hostName, hostConnID string, totalMinutes int, now int64) (*Room, error) {
	totalMinutes = clampMinutes(totalMinutes, PhasePresentation)

	g.mu.Lock()
	defer g.mu.Unlock()

	code := ""
	for i := 0; i < codeRetryBudget; i++ {
		candidate := newCode()
		if _, taken := g.rooms[candidate]; !taken {
			code = candidate
			break
		}
		log.Warn().Str("code", candidate).Msg("room code collision, retrying")
	}
	if code == "" {
		return nil, ErrDuplicateCode
	}

	r := &Room{
		Code:             code,
		Name:             roomName,
		TotalDuration:    totalMinutes,
		QuestionDuration: DefaultQuestionMinutes,
		RemainingTime:    totalMinutes * 60,
		Phase:            PhasePresentation,
		Participants: []Participant{{
			ID:       hostConnID,
			Name:     hostName,
			IsHost:   true,
			IsActive: true,
		}},
		Checkpoints: []Checkpoint{},
		LastUpdated: now,
	}
	g.rooms[code] = r
	return r, nil
}

// Get looks up a room by code.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[code]
	return r, ok
}

// Snapshots returns the current state of every live room, for the
// diagnostic read surface. Each room is locked only long enough to copy.
func (g *Registry) Snapshots() []Snapshot {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		snaps = append(snaps, r.Snapshot())
	}
	return snaps
}

// each iterates over all rooms without holding the registry lock during
// the callback. Used by the presence monitor to find a lost connection.
func (g *Registry) each(fn func(*Room)) {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	for _, r := range rooms {
		fn(r)
	}
}

func newCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
