package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// warningThresholds are the remaining-time marks that trigger a
// timerWarning. Exact equality means each fires at most once per countdown:
// pausing and resuming cannot re-cross a threshold already passed.
var warningThresholds = []int{60, 30}

// countdown is the per-room one-second tick. It exists iff the room is
// running and is owned exclusively by its room: every tick runs under the
// room lock, and a countdown that finds it has been replaced on the room
// exits without touching state.
type countdown struct {
	room   *Room
	svc    *Service
	ctx    context.Context
	cancel context.CancelFunc
	ticker clockwork.Ticker
}

// startCountdownLocked arms a new countdown. Caller holds r.mu and has
// verified the room is not already running.
func (s *Service) startCountdownLocked(r *Room) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &countdown{
		room:   r,
		svc:    s,
		ctx:    ctx,
		cancel: cancel,
		ticker: s.clock.NewTicker(time.Second),
	}
	r.countdown = c
	go c.run()
}

// stopCountdownLocked detaches and cancels the room's countdown. Caller
// holds r.mu. Detaching under the lock guarantees no further tick can
// observe or mutate the room: an in-flight tick blocked on r.mu will see
// r.countdown no longer points at it and bail out.
func (s *Service) stopCountdownLocked(r *Room) {
	if r.countdown == nil {
		return
	}
	r.countdown.cancel()
	r.countdown = nil
}

func (c *countdown) run() {
	defer c.ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.ticker.Chan():
			if !c.tick() {
				return
			}
		}
	}
}

// tick runs one second of countdown: decrement, warning check, phase
// transition, full-state broadcast. Returns false when the countdown is
// finished or has been detached.
func (c *countdown) tick() bool {
	r := c.room
	r.mu.Lock()
	if r.countdown != c {
		r.mu.Unlock()
		return false
	}
	now := c.svc.clock.Now()

	if r.RemainingTime > 0 {
		r.RemainingTime--
	}
	r.LastUpdated = now.UnixMilli()

	var events []*Event
	for _, threshold := range warningThresholds {
		if r.RemainingTime == threshold {
			events = append(events, NewEvent(r.Code, EventTypeTimerWarning, now, TimerWarningPayload{
				RemainingTime: r.RemainingTime,
				Phase:         r.Phase,
			}))
		}
	}

	done := false
	switch {
	case r.RemainingTime <= 0 && r.Phase == PhasePresentation:
		r.Phase = PhaseQuestions
		r.RemainingTime = r.QuestionDuration * 60
		events = append(events, NewEvent(r.Code, EventTypePhaseTransition, now, PhaseTransitionPayload{Phase: PhaseQuestions}))
		log.Info().Str("room_code", r.Code).Msg("presentation ended, entering questions phase")

	case r.RemainingTime <= 0 && r.Phase == PhaseQuestions:
		r.Phase = PhaseCompleted
		r.IsRunning = false
		r.countdown = nil
		c.cancel()
		done = true
		events = append(events, NewEvent(r.Code, EventTypeTimerCompleted, now, nil))
		log.Info().Str("room_code", r.Code).Msg("session completed")
	}

	snap := r.snapshotLocked()
	code := r.Code
	r.mu.Unlock()

	for _, ev := range events {
		c.svc.broadcaster.BroadcastToRoom(code, ev)
	}
	c.svc.broadcastState(code, now, snap)
	return !done
}
