// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/logic"
)

// Topics.
const (
	TopicRelay  = "climate/relay-controller/relay"
	TopicSensor = "climate/relay-controller/sensor"
	TopicSystem = "climate/relay-controller/system"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishRelay sends a relay transition.
	// Returns error if publishing fails (should not crash the process).
	PublishRelay(event RelayEvent) error

	// PublishReading sends a sensor sample.
	PublishReading(event ReadingEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// RelayEvent is a relay transition stamped with wall-clock time.
type RelayEvent struct {
	Timestamp time.Time
	Event     logic.Event
}

// ReadingEvent is a sensor sample stamped with wall-clock time.
type ReadingEvent struct {
	Timestamp time.Time
	Reading   dht.Reading
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// RelayPayload is the MQTT message for a relay transition.
type RelayPayload struct {
	Relay RelayPayloadInner `json:"relay"`
}

// RelayPayloadInner contains the relay transition details.
type RelayPayloadInner struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	Source        string `json:"source"`
	State         string `json:"state"`
	Phase         string `json:"phase"`
	TimerEnabled  bool   `json:"timer_enabled"`
	OnDurationMs  uint32 `json:"on_duration_ms"`
	OffDurationMs uint32 `json:"off_duration_ms"`
}

// SensorPayload is the MQTT message for a sensor sample.
type SensorPayload struct {
	Sensor SensorPayloadInner `json:"sensor"`
}

// SensorPayloadInner contains the sample.
type SensorPayloadInner struct {
	Timestamp    string  `json:"timestamp"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
}

// FormatRelayPayload creates the JSON payload for a relay event.
func FormatRelayPayload(e RelayEvent) ([]byte, error) {
	st := e.Event.State
	state := "OFF"
	if st.CurrentState {
		state = "ON"
	}
	return json.Marshal(RelayPayload{
		Relay: RelayPayloadInner{
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
			Event:         string(e.Event.Type),
			Source:        string(e.Event.Source),
			State:         state,
			Phase:         string(st.Phase()),
			TimerEnabled:  st.Enabled,
			OnDurationMs:  st.OnDurationMs,
			OffDurationMs: st.OffDurationMs,
		},
	})
}

// FormatReadingPayload creates the JSON payload for a sensor sample.
func FormatReadingPayload(e ReadingEvent) ([]byte, error) {
	return json.Marshal(SensorPayload{
		Sensor: SensorPayloadInner{
			Timestamp:    e.Timestamp.UTC().Format(time.RFC3339),
			TemperatureC: e.Reading.TemperatureC,
			HumidityPct:  e.Reading.HumidityPct,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
