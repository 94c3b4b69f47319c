package room

import (
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultGracePeriod is how long a dropped participant has to reconnect
// before being marked inactive.
const DefaultGracePeriod = 10 * time.Second

// binding is the weak reference a connection holds into the room tree.
type binding struct {
	roomCode string
	userName string
}

// Service is the room state machine. Every mutating operation resolves a
// room, runs the read-modify cycle under that room's lock, and broadcasts
// the updated snapshot. Failures are reported to the originator only and
// mutate nothing.
type Service struct {
	registry    *Registry
	broadcaster Broadcaster
	clock       clockwork.Clock
	presence    *presenceMonitor

	bindingsMu sync.RWMutex
	bindings   map[string]binding
}

func NewService(registry *Registry, b Broadcaster, clock clockwork.Clock, gracePeriod time.Duration) *Service {
	s := &Service{
		registry:    registry,
		broadcaster: b,
		clock:       clock,
		bindings:    make(map[string]binding),
	}
	s.presence = newPresenceMonitor(s, clock, gracePeriod)
	return s
}

// Registry exposes the registry for the diagnostic read surface.
func (s *Service) Registry() *Registry {
	return s.registry
}

// CreateRoom registers a new room with the caller as host and pushes the
// initial state to the creator.
func (s *Service) CreateRoom(connID, roomName, userName string, totalMinutes int) (string, error) {
	now := s.clock.Now()
	r, err := s.registry.Create(roomName, userName, connID, totalMinutes, now.UnixMilli())
	if err != nil {
		return "", err
	}
	s.bind(connID, r.Code, userName)

	log.Info().
		Str("room_code", r.Code).
		Str("room_name", roomName).
		Str("host", userName).
		Int("total_duration_min", r.TotalDuration).
		Msg("room created")

	s.broadcaster.SendToConnection(connID, NewEvent(r.Code, EventTypeRoomCreated, now, RoomCreatedPayload{RoomCode: r.Code}))
	s.broadcaster.SendToConnection(connID, NewEvent(r.Code, EventTypeRoomState, now, r.Snapshot()))
	return r.Code, nil
}

// Join adds a participant to a room, or rebinds an existing participant of
// the same name to the new connection. Rejoining never creates a duplicate.
func (s *Service) Join(connID, roomCode, userName string) error {
	r, ok := s.registry.Get(roomCode)
	if !ok {
		return ErrRoomNotFound
	}
	now := s.clock.Now()

	var staleConnID string
	r.mu.Lock()
	if r.IsLocked {
		r.mu.Unlock()
		return ErrRoomLocked
	}
	if p := r.participantByNameLocked(userName); p != nil {
		// Reconnection path: same logical participant, new connection.
		if p.ID != connID {
			staleConnID = p.ID
		}
		p.ID = connID
		p.IsActive = true
	} else {
		r.Participants = append(r.Participants, Participant{
			ID:       connID,
			Name:     userName,
			IsActive: true,
		})
	}
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.presence.cancel(roomCode, userName)
	if staleConnID != "" {
		s.unbind(staleConnID)
	}
	s.bind(connID, roomCode, userName)

	log.Info().Str("room_code", roomCode).Str("user", userName).Msg("participant joined")

	s.broadcaster.SendToConnection(connID, NewEvent(roomCode, EventTypeRoomState, now, snap))
	s.broadcastState(roomCode, now, snap)
	return nil
}

// ToggleReady flips the ready flag of the participant behind the connection.
func (s *Service) ToggleReady(connID, roomCode string) error {
	r, ok := s.registry.Get(roomCode)
	if !ok {
		return ErrRoomNotFound
	}
	now := s.clock.Now()

	r.mu.Lock()
	p := r.participantByIDLocked(connID)
	if p == nil {
		r.mu.Unlock()
		return ErrParticipantNotFound
	}
	p.IsReady = !p.IsReady
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.broadcastState(roomCode, now, snap)
	return nil
}

// AddCheckpoint appends a checkpoint to the caller's current room. The room
// is resolved from the connection's binding, not from the payload.
func (s *Service) AddCheckpoint(connID, name string, timeInSeconds int, note string) error {
	r, err := s.boundRoom(connID)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	r.mu.Lock()
	r.Checkpoints = append(r.Checkpoints, Checkpoint{
		ID:            r.nextCheckpointIDLocked(now.UnixMilli()),
		Name:          name,
		TimeInSeconds: timeInSeconds,
		Note:          note,
	})
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.broadcastState(r.Code, now, snap)
	return nil
}

// RemoveCheckpoint deletes a checkpoint by id from the caller's current
// room. Removing an unknown id is not an error.
func (s *Service) RemoveCheckpoint(connID, id string) error {
	r, err := s.boundRoom(connID)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	r.mu.Lock()
	kept := r.Checkpoints[:0]
	for _, cp := range r.Checkpoints {
		if cp.ID != id {
			kept = append(kept, cp)
		}
	}
	r.Checkpoints = kept
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.broadcastState(r.Code, now, snap)
	return nil
}

// StartTimer begins the countdown. Host only. Starting while already
// running is a no-op: at most one countdown exists per room. A completed
// room cannot be restarted; the host must ResetRoomPhase first.
func (s *Service) StartTimer(connID, roomCode string) error {
	r, err := s.lockAsHost(connID, roomCode)
	if err != nil {
		return err
	}
	if r.IsRunning || r.Phase == PhaseCompleted {
		r.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	r.IsRunning = true
	r.LastUpdated = now.UnixMilli()
	s.startCountdownLocked(r)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().Str("room_code", roomCode).Str("phase", string(snap.Phase)).Msg("timer started")
	s.broadcastState(roomCode, now, snap)
	return nil
}

// PauseTimer cancels the countdown. Host only. Pausing while stopped is a
// no-op. The cancelled countdown can never tick again.
func (s *Service) PauseTimer(connID, roomCode string) error {
	r, err := s.lockAsHost(connID, roomCode)
	if err != nil {
		return err
	}
	if !r.IsRunning {
		r.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	s.stopCountdownLocked(r)
	r.IsRunning = false
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().Str("room_code", roomCode).Int("remaining_sec", snap.RemainingTime).Msg("timer paused")
	s.broadcastState(roomCode, now, snap)
	return nil
}

// UpdateDuration changes a phase's stored duration, clamped to its valid
// range. If the room is currently in the target phase the remaining time
// resets immediately; otherwise the new duration applies on next entry.
func (s *Service) UpdateDuration(connID, roomCode string, minutes int, target Phase) error {
	r, err := s.lockAsHost(connID, roomCode)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if target == PhaseQuestions {
		valid := clampMinutes(minutes, PhaseQuestions)
		r.QuestionDuration = valid
		if r.Phase == PhaseQuestions {
			r.RemainingTime = valid * 60
		}
	} else {
		valid := clampMinutes(minutes, PhasePresentation)
		r.TotalDuration = valid
		if r.Phase == PhasePresentation {
			r.RemainingTime = valid * 60
		}
	}
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.broadcastState(roomCode, now, snap)
	return nil
}

// SkipToQuestions ends the presentation phase early. Host only; a no-op
// outside the presentation phase.
func (s *Service) SkipToQuestions(connID, roomCode string) error {
	r, err := s.lockAsHost(connID, roomCode)
	if err != nil {
		return err
	}
	if r.Phase != PhasePresentation {
		r.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	r.Phase = PhaseQuestions
	r.RemainingTime = r.QuestionDuration * 60
	if r.RemainingTime <= 0 {
		r.RemainingTime = 300
	}
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().Str("room_code", roomCode).Msg("skipped to questions phase")
	s.broadcaster.BroadcastToRoom(roomCode, NewEvent(roomCode, EventTypePhaseTransition, now, PhaseTransitionPayload{Phase: PhaseQuestions}))
	s.broadcastState(roomCode, now, snap)
	return nil
}

// ResetRoomPhase forces the room back to a fresh presentation phase,
// regardless of current phase or running state.
func (s *Service) ResetRoomPhase(connID, roomCode string) error {
	r, err := s.lockAsHost(connID, roomCode)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	r.Phase = PhasePresentation
	r.RemainingTime = r.TotalDuration * 60
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().Str("room_code", roomCode).Msg("room phase reset")
	s.broadcaster.BroadcastToRoom(roomCode, NewEvent(roomCode, EventTypePhaseTransition, now, PhaseTransitionPayload{Phase: PhasePresentation}))
	s.broadcastState(roomCode, now, snap)
	return nil
}

// ToggleLock flips whether new participants may join. Host only. Already
// joined participants are unaffected.
func (s *Service) ToggleLock(connID, roomCode string) error {
	r, err := s.lockAsHost(connID, roomCode)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	r.IsLocked = !r.IsLocked
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	log.Info().Str("room_code", roomCode).Bool("locked", snap.IsLocked).Msg("room lock toggled")
	s.broadcastState(roomCode, now, snap)
	return nil
}

// Disconnect handles a lost connection: every room holding a participant
// bound to it gets a grace timer instead of an immediate inactive mark.
func (s *Service) Disconnect(connID string) {
	s.registry.each(func(r *Room) {
		r.mu.Lock()
		p := r.participantByIDLocked(connID)
		if p == nil {
			r.mu.Unlock()
			return
		}
		code, name := r.Code, p.Name
		r.mu.Unlock()

		log.Debug().Str("room_code", code).Str("user", name).Msg("connection lost, starting grace period")
		s.presence.schedule(code, name, connID)
	})
}

// Reconnect cancels a pending grace timer for the participant behind the
// connection, if any.
func (s *Service) Reconnect(connID string) {
	s.bindingsMu.RLock()
	b, ok := s.bindings[connID]
	s.bindingsMu.RUnlock()
	if ok {
		s.presence.cancel(b.roomCode, b.userName)
	}
}

// markInactive is the grace-timer expiry path. The connection id check
// makes an expired timer a no-op when the participant already rebound to a
// new connection.
func (s *Service) markInactive(roomCode, name, connID string) {
	r, ok := s.registry.Get(roomCode)
	if !ok {
		return
	}
	now := s.clock.Now()

	r.mu.Lock()
	p := r.participantByNameLocked(name)
	if p == nil || p.ID != connID || !p.IsActive {
		r.mu.Unlock()
		return
	}
	p.IsActive = false
	r.LastUpdated = now.UnixMilli()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	// The connection is gone for good; its binding dies with it.
	s.unbind(connID)

	log.Info().Str("room_code", roomCode).Str("user", name).Msg("participant inactive after grace period")
	s.broadcastState(roomCode, now, snap)
}

// lockAsHost resolves a host-gated operation: the room must exist and the
// connection must belong to its host. On success the room is returned
// locked; the caller owns the unlock.
func (s *Service) lockAsHost(connID, roomCode string) (*Room, error) {
	r, ok := s.registry.Get(roomCode)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	if p := r.participantByIDLocked(connID); p == nil || !p.IsHost {
		r.mu.Unlock()
		log.Warn().Str("room_code", roomCode).Str("conn_id", connID).Msg("non-host attempted host action")
		return nil, ErrNotAuthorized
	}
	return r, nil
}

// boundRoom resolves the room the connection is currently joined to.
func (s *Service) boundRoom(connID string) (*Room, error) {
	s.bindingsMu.RLock()
	b, ok := s.bindings[connID]
	s.bindingsMu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	r, ok := s.registry.Get(b.roomCode)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (s *Service) bind(connID, roomCode, userName string) {
	s.bindingsMu.Lock()
	s.bindings[connID] = binding{roomCode: roomCode, userName: userName}
	s.bindingsMu.Unlock()
}

func (s *Service) unbind(connID string) {
	s.bindingsMu.Lock()
	delete(s.bindings, connID)
	s.bindingsMu.Unlock()
}

func (s *Service) broadcastState(roomCode string, ts time.Time, snap Snapshot) {
	s.broadcaster.BroadcastToRoom(roomCode, NewEvent(roomCode, EventTypeRoomState, ts, snap))
}

// nextCheckpointIDLocked derives a unique id from the creation timestamp,
// bumping by a millisecond on the rare same-instant collision.
func (r *Room) nextCheckpointIDLocked(nowMilli int64) string {
	for {
		id := strconv.FormatInt(nowMilli, 10)
		taken := false
		for _, cp := range r.Checkpoints {
			if cp.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		nowMilli++
	}
}
