package room

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// recorder captures every event the service emits, in order.
type recorder struct {
	events chan *Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan *Event, 4096)}
}

func (r *recorder) BroadcastToRoom(roomCode string, ev *Event) {
	r.events <- ev
}

func (r *recorder) SendToConnection(connID string, ev *Event) {
	r.events <- ev
}

// next returns the next recorded event, failing the test after a timeout.
func (r *recorder) next(t *testing.T) *Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// collectUntilState reads events up to and including the next full-state
// broadcast.
func (r *recorder) collectUntilState(t *testing.T) []*Event {
	t.Helper()
	var events []*Event
	for {
		ev := r.next(t)
		events = append(events, ev)
		if ev.Type == EventTypeRoomState {
			return events
		}
	}
}

// drain discards everything recorded so far.
func (r *recorder) drain() {
	for {
		select {
		case <-r.events:
		default:
			return
		}
	}
}

// assertEmpty fails if any event is pending.
func (r *recorder) assertEmpty(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %q", ev.Type)
	default:
	}
}

func newTestService(t *testing.T) (*Service, *recorder, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	svc := NewService(NewRegistry(), rec, clock, 10*time.Second)
	return svc, rec, clock
}

// mustCreate creates a room and drains the creation events.
func mustCreate(t *testing.T, svc *Service, rec *recorder, connID, roomName, hostName string, minutes int) string {
	t.Helper()
	code, err := svc.CreateRoom(connID, roomName, hostName, minutes)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	rec.drain()
	return code
}

func decodeSnapshot(t *testing.T, ev *Event) Snapshot {
	t.Helper()
	if ev.Type != EventTypeRoomState {
		t.Fatalf("expected %q event, got %q", EventTypeRoomState, ev.Type)
	}
	var snap Snapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

// advanceTicks moves the fake clock forward one countdown tick at a time,
// waiting for each tick's state broadcast so ticks are never coalesced.
// Returns every event emitted along the way.
func advanceTicks(t *testing.T, clock *clockwork.FakeClock, rec *recorder, n int) []*Event {
	t.Helper()
	var events []*Event
	for i := 0; i < n; i++ {
		clock.Advance(time.Second)
		events = append(events, rec.collectUntilState(t)...)
	}
	return events
}

func countType(events []*Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func lastSnapshot(t *testing.T, events []*Event) Snapshot {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == EventTypeRoomState {
			return decodeSnapshot(t, events[i])
		}
	}
	t.Fatal("no state broadcast recorded")
	return Snapshot{}
}
