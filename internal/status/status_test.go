package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 100, SampleMs: 30000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker("abc", start, cfg)
	snap := tr.Snapshot()

	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.InstanceID != "abc" {
		t.Errorf("InstanceID: got %q, want abc", snap.InstanceID)
	}
	if snap.Config.TickMs != 100 {
		t.Errorf("Config.TickMs: got %d, want 100", snap.Config.TickMs)
	}
	if snap.Reading != nil {
		t.Error("expected no reading initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateSchedule(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	tr.UpdateSchedule(logic.State{Enabled: true, CurrentState: true, OnDurationMs: 5000}, logic.EventCounts{RelayOn: 3})

	snap := tr.Snapshot()
	if !snap.Schedule.CurrentState || !snap.Schedule.Enabled {
		t.Errorf("Schedule: got %+v", snap.Schedule)
	}
	if snap.Counts.RelayOn != 3 {
		t.Errorf("Counts.RelayOn: got %d, want 3", snap.Counts.RelayOn)
	}
}

func TestRecordReadingClearsLastError(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	tr.ObserveRead(dht.Reading{}, dht.ErrTimeout)
	if tr.Snapshot().LastError == "" {
		t.Fatal("expected LastError after failed read")
	}

	at := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
	tr.RecordReading(dht.Reading{TemperatureC: 21.5, HumidityPct: 50}, at)

	snap := tr.Snapshot()
	if snap.LastError != "" {
		t.Errorf("LastError: got %q, want empty", snap.LastError)
	}
	if snap.Reading == nil || snap.Reading.TemperatureC != 21.5 {
		t.Errorf("Reading: got %+v", snap.Reading)
	}
	if !snap.ReadingAt.Equal(at) {
		t.Errorf("ReadingAt: got %v, want %v", snap.ReadingAt, at)
	}
}

func TestObserveReadCountsByKind(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	tr.ObserveRead(dht.Reading{}, &dht.StepError{Step: dht.StepWaitAck, Err: dht.ErrNotFound})
	tr.ObserveRead(dht.Reading{}, dht.ErrTimeout)
	tr.ObserveRead(dht.Reading{}, dht.ErrTimeout)
	tr.ObserveRead(dht.Reading{}, dht.ErrChecksumMismatch)
	tr.ObserveRead(dht.Reading{}, errors.New("unclassified"))
	tr.ObserveRead(dht.Reading{TemperatureC: 1}, nil)

	e := tr.Snapshot().Errors
	if e.NotFound != 1 || e.Timeout != 2 || e.ChecksumMismatch != 1 {
		t.Errorf("Errors: got %+v", e)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})
	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	tr.RecordReading(dht.Reading{TemperatureC: 20}, time.Now())
	snap1 := tr.Snapshot()

	tr.RecordReading(dht.Reading{TemperatureC: 25}, time.Now())
	tr.UpdateSchedule(logic.State{Enabled: true}, logic.EventCounts{})

	if snap1.Reading.TemperatureC != 20 {
		t.Error("snapshot should be a copy; Reading was modified")
	}
	if snap1.Schedule.Enabled {
		t.Error("snapshot should be a copy; Schedule was modified")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		InstanceID: "id-1",
		Hostname:   "temcontrol",
		Schedule:   logic.State{Enabled: true, CurrentState: true, OnDurationMs: 5000, OffDurationMs: 3000},
		Counts:     logic.EventCounts{RelayOn: 5, RelayOff: 4},
		Reading:    &dht.Reading{TemperatureC: 21.5, HumidityPct: 50},
		ReadingAt:  start.Add(time.Minute),
		StartTime:  start,
		Now:        start.Add(15 * time.Minute),
		Errors:     SensorErrors{Timeout: 2},
		Config:     Config{TickMs: 100, Broker: "tcp://localhost:1883", HTTPAddr: ":80"},

		MQTTConnected: true,
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Relay.State != "ON" || s.Relay.Phase != "ON_PHASE" || !s.Relay.TimerEnabled {
		t.Errorf("Relay: got %+v", s.Relay)
	}
	if s.Relay.OnDurationMs != 5000 || s.Relay.OffDurationMs != 3000 {
		t.Errorf("Relay durations: got %d/%d", s.Relay.OnDurationMs, s.Relay.OffDurationMs)
	}
	if s.Relay.TransitionsOn != 5 {
		t.Errorf("TransitionsOn: got %d, want 5", s.Relay.TransitionsOn)
	}
	if s.Sensor.TemperatureC == nil || *s.Sensor.TemperatureC != 21.5 {
		t.Errorf("Sensor.TemperatureC: got %v", s.Sensor.TemperatureC)
	}
	if s.Sensor.ReadAt != "2026-01-01T00:01:00Z" {
		t.Errorf("Sensor.ReadAt: got %q", s.Sensor.ReadAt)
	}
	if s.Sensor.Errors.Timeout != 2 {
		t.Errorf("Sensor.Errors.Timeout: got %d, want 2", s.Sensor.Errors.Timeout)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONNoReading(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	json.Unmarshal(FormatJSON(snap), &raw)
	sensor := raw["status"].(map[string]interface{})["sensor"].(map[string]interface{})
	if _, exists := sensor["temperature_c"]; exists {
		t.Error("temperature_c should be omitted before the first reading")
	}

	relay := raw["status"].(map[string]interface{})["relay"].(map[string]interface{})
	if relay["state"] != "OFF" || relay["phase"] != "OFF" {
		t.Errorf("relay: got %v", relay)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)
	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker("", time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateSchedule(logic.State{Enabled: i%2 == 0}, logic.EventCounts{RelayOn: i})
			tr.RecordReading(dht.Reading{TemperatureC: float64(i)}, time.Now())
			tr.ObserveRead(dht.Reading{}, dht.ErrTimeout)
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
