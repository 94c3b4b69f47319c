package room

import (
	"testing"
	"time"
)

func TestCountdownWarningsAndPhaseTransition(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 2)

	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	if snap := decodeSnapshot(t, rec.next(t)); !snap.IsRunning {
		t.Fatal("timer did not start")
	}

	// 120s -> 60s: exactly one warning, fired at the 60s mark.
	events := advanceTicks(t, clock, rec, 60)
	if got := countType(events, EventTypeTimerWarning); got != 1 {
		t.Errorf("warnings in first minute = %d, want 1", got)
	}
	snap := lastSnapshot(t, events)
	if snap.RemainingTime != 60 {
		t.Errorf("remaining = %d, want 60", snap.RemainingTime)
	}

	// 60s -> 30s: the second warning.
	events = advanceTicks(t, clock, rec, 30)
	if got := countType(events, EventTypeTimerWarning); got != 1 {
		t.Errorf("warnings in second interval = %d, want 1", got)
	}

	// 30s -> 0: presentation rolls over into questions.
	events = advanceTicks(t, clock, rec, 30)
	if got := countType(events, EventTypePhaseTransition); got != 1 {
		t.Errorf("phase transitions = %d, want 1", got)
	}
	if got := countType(events, EventTypeTimerWarning); got != 0 {
		t.Errorf("warnings during rollover = %d, want 0", got)
	}
	snap = lastSnapshot(t, events)
	if snap.Phase != PhaseQuestions || snap.RemainingTime != DefaultQuestionMinutes*60 || !snap.IsRunning {
		t.Errorf("after rollover: phase=%q remaining=%d running=%v", snap.Phase, snap.RemainingTime, snap.IsRunning)
	}
}

func TestCountdownPhaseEnteredAtThresholdSkipsWarning(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 1)

	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	rec.drain()

	// The phase begins at exactly 60s, so the first tick lands on 59 and
	// the 60s warning never fires.
	events := advanceTicks(t, clock, rec, 29)
	if got := countType(events, EventTypeTimerWarning); got != 0 {
		t.Errorf("warnings before 30s mark = %d, want 0", got)
	}
	events = advanceTicks(t, clock, rec, 1)
	if got := countType(events, EventTypeTimerWarning); got != 1 {
		t.Errorf("warnings at 30s mark = %d, want 1", got)
	}
	if snap := lastSnapshot(t, events); snap.RemainingTime != 30 {
		t.Errorf("remaining = %d, want 30", snap.RemainingTime)
	}
}

func TestCountdownCompletion(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 1)

	if err := svc.UpdateDuration("conn-1", code, 1, PhaseQuestions); err != nil {
		t.Fatalf("UpdateDuration: %v", err)
	}
	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	rec.drain()

	// One minute of presentation, one minute of questions.
	events := advanceTicks(t, clock, rec, 120)
	if got := countType(events, EventTypePhaseTransition); got != 1 {
		t.Errorf("phase transitions = %d, want 1", got)
	}
	if got := countType(events, EventTypeTimerCompleted); got != 1 {
		t.Errorf("timerCompleted events = %d, want 1", got)
	}
	snap := lastSnapshot(t, events)
	if snap.Phase != PhaseCompleted || snap.IsRunning || snap.RemainingTime != 0 {
		t.Errorf("final state: phase=%q running=%v remaining=%d", snap.Phase, snap.IsRunning, snap.RemainingTime)
	}

	// A completed countdown never ticks again.
	clock.Advance(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	rec.assertEmpty(t)
}

func TestStartAfterCompletionIsNoOp(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 1)

	if err := svc.UpdateDuration("conn-1", code, 1, PhaseQuestions); err != nil {
		t.Fatalf("UpdateDuration: %v", err)
	}
	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	rec.drain()
	advanceTicks(t, clock, rec, 120)

	// The session is over; a second start must not revive the countdown.
	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("restart: %v", err)
	}
	rec.assertEmpty(t)

	r, _ := svc.Registry().Get(code)
	snap := r.Snapshot()
	if snap.IsRunning || snap.Phase != PhaseCompleted {
		t.Errorf("after restart: phase=%q running=%v, want completed/stopped", snap.Phase, snap.IsRunning)
	}

	clock.Advance(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	rec.assertEmpty(t)

	// ResetRoomPhase is the sanctioned way back to a runnable room.
	if err := svc.ResetRoomPhase("conn-1", code); err != nil {
		t.Fatalf("ResetRoomPhase: %v", err)
	}
	rec.drain()
	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
	rec.drain()
	snap = lastSnapshot(t, advanceTicks(t, clock, rec, 1))
	if snap.Phase != PhasePresentation || snap.RemainingTime != 59 {
		t.Errorf("after reset+start tick: phase=%q remaining=%d", snap.Phase, snap.RemainingTime)
	}
}

func TestPauseFreezesCountdown(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 2)

	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	rec.drain()
	advanceTicks(t, clock, rec, 10)

	if err := svc.PauseTimer("conn-1", code); err != nil {
		t.Fatalf("PauseTimer: %v", err)
	}
	snap := decodeSnapshot(t, rec.next(t))
	if snap.IsRunning || snap.RemainingTime != 110 {
		t.Errorf("after pause: running=%v remaining=%d, want stopped/110", snap.IsRunning, snap.RemainingTime)
	}

	// Time passing while paused changes nothing.
	clock.Advance(30 * time.Second)
	time.Sleep(50 * time.Millisecond)
	rec.assertEmpty(t)

	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rec.drain()
	snap = lastSnapshot(t, advanceTicks(t, clock, rec, 1))
	if snap.RemainingTime != 109 {
		t.Errorf("after resume tick: remaining=%d, want 109", snap.RemainingTime)
	}
}

func TestPauseWhileStoppedIsNoOp(t *testing.T) {
	svc, rec, _ := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 2)

	if err := svc.PauseTimer("conn-1", code); err != nil {
		t.Fatalf("PauseTimer: %v", err)
	}
	rec.assertEmpty(t)
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 2)

	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	rec.drain()
	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("second StartTimer: %v", err)
	}
	rec.assertEmpty(t)

	// A duplicate start must not arm a second countdown: one second of
	// clock advances the room by exactly one second.
	snap := lastSnapshot(t, advanceTicks(t, clock, rec, 1))
	if snap.RemainingTime != 119 {
		t.Errorf("remaining=%d after one tick, want 119", snap.RemainingTime)
	}
}

func TestPauseResumeDoesNotRefireWarning(t *testing.T) {
	svc, rec, clock := newTestService(t)
	code := mustCreate(t, svc, rec, "conn-1", "Demo", "Alice", 2)

	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("StartTimer: %v", err)
	}
	rec.drain()

	events := advanceTicks(t, clock, rec, 60)
	if got := countType(events, EventTypeTimerWarning); got != 1 {
		t.Fatalf("warnings = %d, want 1", got)
	}

	if err := svc.PauseTimer("conn-1", code); err != nil {
		t.Fatalf("PauseTimer: %v", err)
	}
	if err := svc.StartTimer("conn-1", code); err != nil {
		t.Fatalf("resume: %v", err)
	}
	rec.drain()

	// Resuming below the 60s mark must not replay the 60s warning.
	events = advanceTicks(t, clock, rec, 5)
	if got := countType(events, EventTypeTimerWarning); got != 0 {
		t.Errorf("warnings after resume = %d, want 0", got)
	}
}
