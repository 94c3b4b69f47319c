package room

import (
	"sync"
)

// Phase is a room's position in its lifecycle.
type Phase string

const (
	PhasePresentation Phase = "presentation"
	PhaseQuestions    Phase = "questions"
	PhaseCompleted    Phase = "completed"
)

const (
	// DefaultQuestionMinutes is the Q&A duration assigned at room creation.
	DefaultQuestionMinutes = 5

	// MaxPresentationMinutes and MaxQuestionMinutes bound the host-adjustable
	// durations. MinDurationMinutes is the shared floor.
	MaxPresentationMinutes = 60
	MaxQuestionMinutes     = 30
	MinDurationMinutes     = 1
)

// Participant is a member of a room. Identity within a room is by Name;
// ID is the volatile connection id and is rebound on reconnect.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsReady  bool   `json:"isReady"`
	IsHost   bool   `json:"isHost"`
	IsActive bool   `json:"isActive"`
}

// Checkpoint is a named target offset into the presentation. Informational
// only: Reached is never flipped by the server.
type Checkpoint struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TimeInSeconds int    `json:"timeInSeconds"`
	Note          string `json:"note"`
	Reached       bool   `json:"reached"`
}

// Room holds the state of one presentation session. All fields are guarded
// by mu; every read-modify-broadcast cycle, including the countdown tick,
// runs with mu held. Rooms are independent of each other.
type Room struct {
	mu sync.Mutex

	Code             string
	Name             string
	TotalDuration    int // presentation length, minutes
	QuestionDuration int // Q&A length, minutes
	RemainingTime    int // seconds left in the current phase
	Phase            Phase
	IsRunning        bool
	IsLocked         bool
	Participants     []Participant
	Checkpoints      []Checkpoint
	LastUpdated      int64 // unix milliseconds

	// countdown is non-nil iff IsRunning. At most one exists per room;
	// a stale tick detects replacement by comparing against this field.
	countdown *countdown
}

// Snapshot is the full-room state pushed to clients. Field names match the
// wire format the frontend expects.
type Snapshot struct {
	RoomCode         string        `json:"roomCode"`
	RoomName         string        `json:"roomName"`
	TotalDuration    int           `json:"totalDuration"`
	QuestionDuration int           `json:"questionDuration"`
	RemainingTime    int           `json:"remainingTime"`
	Phase            Phase         `json:"phase"`
	IsRunning        bool          `json:"isRunning"`
	IsLocked         bool          `json:"isLocked"`
	Participants     []Participant `json:"participants"`
	Checkpoints      []Checkpoint  `json:"checkpoints"`
	LastUpdated      int64         `json:"lastUpdated"`
}

// Snapshot returns a deep copy of the room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	snap := Snapshot{
		RoomCode:         r.Code,
		RoomName:         r.Name,
		TotalDuration:    r.TotalDuration,
		QuestionDuration: r.QuestionDuration,
		RemainingTime:    r.RemainingTime,
		Phase:            r.Phase,
		IsRunning:        r.IsRunning,
		IsLocked:         r.IsLocked,
		Participants:     make([]Participant, len(r.Participants)),
		Checkpoints:      make([]Checkpoint, len(r.Checkpoints)),
		LastUpdated:      r.LastUpdated,
	}
	copy(snap.Participants, r.Participants)
	copy(snap.Checkpoints, r.Checkpoints)
	return snap
}

// participantByIDLocked returns the participant bound to a connection id.
func (r *Room) participantByIDLocked(connID string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].ID == connID {
			return &r.Participants[i]
		}
	}
	return nil
}

// participantByNameLocked returns the participant with the given name.
// Name is the stable identity across reconnects.
func (r *Room) participantByNameLocked(name string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].Name == name {
			return &r.Participants[i]
		}
	}
	return nil
}

// clampMinutes bounds a duration to the valid range for a phase.
func clampMinutes(minutes int, phase Phase) int {
	max := MaxPresentationMinutes
	if phase == PhaseQuestions {
		max = MaxQuestionMinutes
	}
	if minutes < MinDurationMinutes {
		return MinDurationMinutes
	}
	if minutes > max {
		return max
	}
	return minutes
}
