// Package logic contains the relay duty-cycle state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable as a wrapping millisecond counter.
package logic

// Phase is the scheduler's position in the duty cycle.
type Phase string

const (
	PhaseOff      Phase = "OFF"       // scheduler disabled
	PhaseOn       Phase = "ON_PHASE"  // enabled, relay energized
	PhaseOffCycle Phase = "OFF_PHASE" // enabled, relay de-energized
)

// EventType represents a relay transition.
type EventType string

const (
	EventRelayOn  EventType = "RELAY_ON"
	EventRelayOff EventType = "RELAY_OFF"
)

// Source identifies what caused a transition.
type Source string

const (
	SourceTimer    Source = "TIMER"
	SourceOverride Source = "OVERRIDE"
	SourceDisable  Source = "DISABLE"
)

// State is the duty-cycle record. It is a value type; Scheduler.State returns
// a copy taken under the scheduler lock.
type State struct {
	Enabled       bool
	OnDurationMs  uint32
	OffDurationMs uint32
	// LastToggleMs is the monotonic millisecond counter at the last phase
	// change. It wraps like the counter it is read from.
	LastToggleMs uint32
	// CurrentState is true while the relay is energized.
	CurrentState bool
}

// Phase derives the duty-cycle phase.
func (s State) Phase() Phase {
	switch {
	case !s.Enabled:
		return PhaseOff
	case s.CurrentState:
		return PhaseOn
	default:
		return PhaseOffCycle
	}
}

// Event represents a relay transition to be published.
type Event struct {
	Type   EventType
	Source Source
	AtMs   uint32
	State  State
}

// EventCounts tracks the number of relay transitions since startup.
type EventCounts struct {
	RelayOn  int
	RelayOff int
}
