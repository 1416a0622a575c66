package logic

import (
	"log"
	"sync"
)

// Output drives the relay.
type Output interface {
	Set(on bool) error
}

// Scheduler toggles an Output on a configurable on/off timer.
// All methods are safe for concurrent use. Tick is expected every ~100ms;
// configuration changes are picked up by the next Tick.
type Scheduler struct {
	mu     sync.Mutex
	out    Output
	state  State
	counts EventCounts
	notify func(Event)
}

// NewScheduler creates a disabled scheduler and drives out off.
// notify, if non-nil, is called for every relay transition after the
// scheduler lock has been released.
func NewScheduler(out Output, notify func(Event)) *Scheduler {
	if err := out.Set(false); err != nil {
		log.Printf("scheduler: initial relay off: %v", err)
	}
	return &Scheduler{out: out, notify: notify}
}

// Tick advances the duty cycle to nowMs and returns the transition, if any.
func (s *Scheduler) Tick(nowMs uint32) *Event {
	s.mu.Lock()
	ev := s.tickLocked(nowMs)
	s.mu.Unlock()

	s.emit(ev)
	return ev
}

func (s *Scheduler) tickLocked(nowMs uint32) *Event {
	if !s.state.Enabled {
		return nil
	}

	// Unsigned subtraction stays correct across counter wraparound.
	elapsed := nowMs - s.state.LastToggleMs

	target := !s.state.CurrentState
	if s.state.CurrentState {
		if elapsed < s.state.OnDurationMs {
			return nil
		}
	} else if elapsed < s.state.OffDurationMs {
		return nil
	}

	if err := s.out.Set(target); err != nil {
		log.Printf("scheduler: relay write failed, retrying next tick: %v", err)
		return nil
	}
	s.state.CurrentState = target
	s.state.LastToggleMs = nowMs
	return s.eventLocked(SourceTimer, nowMs)
}

// State returns a snapshot of the duty-cycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counts returns the number of transitions since startup.
func (s *Scheduler) Counts() EventCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// SetEnabled enables or disables the timer. Enabling restarts the current
// phase at nowMs. Disabling drives the relay off immediately.
func (s *Scheduler) SetEnabled(enabled bool, nowMs uint32) {
	s.mu.Lock()
	var ev *Event
	if enabled {
		s.state.Enabled = true
		s.state.LastToggleMs = nowMs
	} else {
		ev = s.forceOffLocked(nowMs)
	}
	s.mu.Unlock()

	s.emit(ev)
}

// SetDurations sets the phase lengths. Zero is accepted and makes the
// corresponding phase end on the next tick. The current phase restarts at nowMs.
func (s *Scheduler) SetDurations(onMs, offMs, nowMs uint32) {
	s.mu.Lock()
	s.state.OnDurationMs = onMs
	s.state.OffDurationMs = offMs
	s.state.LastToggleMs = nowMs
	s.mu.Unlock()
}

// Override drives the relay directly and disables the timer so the next
// tick does not undo it.
func (s *Scheduler) Override(on bool, nowMs uint32) {
	s.mu.Lock()
	s.state.Enabled = false
	var ev *Event
	if err := s.out.Set(on); err != nil {
		log.Printf("scheduler: override relay write failed: %v", err)
	} else {
		changed := s.state.CurrentState != on
		s.state.CurrentState = on
		s.state.LastToggleMs = nowMs
		if changed {
			ev = s.eventLocked(SourceOverride, nowMs)
		}
	}
	s.mu.Unlock()

	s.emit(ev)
}

// forceOffLocked disables the timer and drives the relay off. The state
// records off even if the write fails, so a disabled scheduler never claims
// an energized relay.
func (s *Scheduler) forceOffLocked(nowMs uint32) *Event {
	wasOn := s.state.CurrentState
	s.state.Enabled = false
	if err := s.out.Set(false); err != nil {
		log.Printf("scheduler: relay off failed: %v", err)
	}
	s.state.CurrentState = false
	if !wasOn {
		return nil
	}
	s.state.LastToggleMs = nowMs
	return s.eventLocked(SourceDisable, nowMs)
}

func (s *Scheduler) eventLocked(src Source, nowMs uint32) *Event {
	typ := EventRelayOff
	if s.state.CurrentState {
		typ = EventRelayOn
		s.counts.RelayOn++
	} else {
		s.counts.RelayOff++
	}
	return &Event{Type: typ, Source: src, AtMs: nowMs, State: s.state}
}

func (s *Scheduler) emit(ev *Event) {
	if ev != nil && s.notify != nil {
		s.notify(*ev)
	}
}
