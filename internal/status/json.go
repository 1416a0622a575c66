package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	InstanceID    string       `json:"instance_id"`
	Hostname      string       `json:"hostname"`
	Relay         RelayJSON    `json:"relay"`
	Sensor        SensorJSON   `json:"sensor"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RelayJSON is the JSON representation of the relay and its timer.
type RelayJSON struct {
	State          string `json:"state"`
	Phase          string `json:"phase"`
	TimerEnabled   bool   `json:"timer_enabled"`
	OnDurationMs   uint32 `json:"on_duration_ms"`
	OffDurationMs  uint32 `json:"off_duration_ms"`
	TransitionsOn  int    `json:"transitions_on"`
	TransitionsOff int    `json:"transitions_off"`
}

// SensorJSON is the JSON representation of the last sensor sample.
type SensorJSON struct {
	TemperatureC *float64        `json:"temperature_c,omitempty"`
	HumidityPct  *float64        `json:"humidity_pct,omitempty"`
	ReadAt       string          `json:"read_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	Errors       SensorErrorJSON `json:"errors"`
}

// SensorErrorJSON counts failed reads by kind.
type SensorErrorJSON struct {
	NotFound         int `json:"not_found"`
	Timeout          int `json:"timeout"`
	ChecksumMismatch int `json:"checksum_mismatch"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	SampleMs    int64  `json:"sample_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	PinDHT      int    `json:"pin_dht"`
	PinRelay    int    `json:"pin_relay"`
	Simulated   bool   `json:"simulated,omitempty"`
}

// RelayString renders a relay level as ON/OFF.
func RelayString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		InstanceID: snap.InstanceID,
		Hostname:   snap.Hostname,
		Relay: RelayJSON{
			State:          RelayString(snap.Schedule.CurrentState),
			Phase:          string(snap.Schedule.Phase()),
			TimerEnabled:   snap.Schedule.Enabled,
			OnDurationMs:   snap.Schedule.OnDurationMs,
			OffDurationMs:  snap.Schedule.OffDurationMs,
			TransitionsOn:  snap.Counts.RelayOn,
			TransitionsOff: snap.Counts.RelayOff,
		},
		Sensor: SensorJSON{
			LastError: snap.LastError,
			Errors: SensorErrorJSON{
				NotFound:         snap.Errors.NotFound,
				Timeout:          snap.Errors.Timeout,
				ChecksumMismatch: snap.Errors.ChecksumMismatch,
			},
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			SampleMs:    snap.Config.SampleMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			PinDHT:      snap.Config.PinDHT,
			PinRelay:    snap.Config.PinRelay,
			Simulated:   snap.Config.Simulated,
		},
	}
	if snap.Reading != nil {
		temp, hum := snap.Reading.TemperatureC, snap.Reading.HumidityPct
		inner.Sensor.TemperatureC = &temp
		inner.Sensor.HumidityPct = &hum
		inner.Sensor.ReadAt = snap.ReadingAt.UTC().Format(time.RFC3339)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
