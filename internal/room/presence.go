package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type presenceKey struct {
	roomCode string
	name     string
}

// presenceMonitor defers marking a participant inactive after a connection
// drop. Each (room, participant) pair holds at most one pending grace
// timer: a new disconnect replaces the old timer instead of queueing a
// second one, and a timely reconnect cancels it outright.
type presenceMonitor struct {
	svc   *Service
	clock clockwork.Clock
	grace time.Duration

	mu     sync.Mutex
	timers map[presenceKey]clockwork.Timer
}

func newPresenceMonitor(svc *Service, clock clockwork.Clock, grace time.Duration) *presenceMonitor {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &presenceMonitor{
		svc:    svc,
		clock:  clock,
		grace:  grace,
		timers: make(map[presenceKey]clockwork.Timer),
	}
}

// schedule arms the grace timer for a participant, replacing any pending
// one. connID pins the timer to the connection that was lost, so an expiry
// racing a rebind cannot deactivate the reconnected participant.
func (m *presenceMonitor) schedule(roomCode, name, connID string) {
	key := presenceKey{roomCode: roomCode, name: name}
	m.mu.Lock()
	if t, ok := m.timers[key]; ok {
		t.Stop()
	}
	m.timers[key] = m.clock.AfterFunc(m.grace, func() {
		m.expire(key, connID)
	})
	m.mu.Unlock()
}

// cancel drops a pending grace timer, if any.
func (m *presenceMonitor) cancel(roomCode, name string) {
	key := presenceKey{roomCode: roomCode, name: name}
	m.mu.Lock()
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()
}

func (m *presenceMonitor) expire(key presenceKey, connID string) {
	m.mu.Lock()
	delete(m.timers, key)
	m.mu.Unlock()

	m.svc.markInactive(key.roomCode, key.name, connID)
}
