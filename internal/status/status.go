// Package status provides a thread-safe status tracker for the relay-controller daemon.
// It is read by the HTTP handlers, heartbeat events and the status LED.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/logic"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	SampleMs    int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	PinDHT      int
	PinRelay    int
	Simulated   bool
}

// SensorErrors counts failed read attempts by kind.
type SensorErrors struct {
	NotFound         int
	Timeout          int
	ChecksumMismatch int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	InstanceID    string
	Hostname      string
	Schedule      logic.State
	Counts        logic.EventCounts
	Reading       *dht.Reading
	ReadingAt     time.Time
	LastError     string
	Errors        SensorErrors
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given identity, start time and config.
func NewTracker(instanceID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			InstanceID: instanceID,
			StartTime:  startTime,
			Config:     cfg,
		},
	}
}

// UpdateSchedule records the scheduler state and transition counts.
func (t *Tracker) UpdateSchedule(st logic.State, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Schedule = st
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordReading records a successful sample.
func (t *Tracker) RecordReading(r dht.Reading, at time.Time) {
	t.mu.Lock()
	t.snap.Reading = &r
	t.snap.ReadingAt = at
	t.snap.LastError = ""
	t.mu.Unlock()
}

// ObserveRead counts one read attempt. It satisfies sampler.Observer.
func (t *Tracker) ObserveRead(_ dht.Reading, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastError = err.Error()
	switch dht.Kind(err) {
	case dht.ErrNotFound:
		t.snap.Errors.NotFound++
	case dht.ErrTimeout:
		t.snap.Errors.Timeout++
	case dht.ErrChecksumMismatch:
		t.snap.Errors.ChecksumMismatch++
	}
}

// SetHostname sets the advertised hostname.
func (t *Tracker) SetHostname(name string) {
	t.mu.Lock()
	t.snap.Hostname = name
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Reading != nil {
		r := *s.Reading
		s.Reading = &r
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
