package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/sampler"
	"github.com/sweeney/relay-controller/internal/settings"
)

// maxBodyBytes bounds request bodies on the management API.
const maxBodyBytes = 1 << 10

// maxDurationSec is the longest phase, in seconds, that fits in uint32 ms.
const maxDurationSec = math.MaxUint32 / 1000

// SensorResponse is the body of a successful GET /api/sensor.
type SensorResponse struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Status      string  `json:"status"`
}

// ErrorResponse is returned by the API on failure.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RelayRequest is the body of POST /api/relay.
type RelayRequest struct {
	State string `json:"state"`
}

// RelayResponse confirms the commanded relay state.
type RelayResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// TimerJSON is the body of GET /api/timer. Durations are in seconds.
type TimerJSON struct {
	Enabled      bool   `json:"enabled"`
	OnDuration   uint32 `json:"onDuration"`
	OffDuration  uint32 `json:"offDuration"`
	CurrentState bool   `json:"currentState"`
}

// TimerRequest is the body of POST /api/timer. Absent fields are left as
// they are.
type TimerRequest struct {
	Enabled     *bool   `json:"enabled"`
	OnDuration  *uint32 `json:"onDuration"`
	OffDuration *uint32 `json:"offDuration"`
}

// HostnameJSON is the body of GET and POST /api/hostname.
type HostnameJSON struct {
	Hostname string `json:"hostname"`
}

// OKResponse acknowledges a change.
type OKResponse struct {
	Status string `json:"status"`
}

const (
	msgSensorNotConnected = "Sensor not connected"
	msgSensorFailed       = "Failed to read sensor"
	msgInvalidRequest     = "Invalid request"
)

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), sampler.DefaultReadTimeout)
	defer cancel()

	reading, err := s.deps.Sampler.Sample(ctx)
	if err != nil {
		msg := msgSensorFailed
		if errors.Is(err, dht.ErrNotFound) {
			msg = msgSensorNotConnected
		}
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Status: "error", Message: msg})
		return
	}
	s.deps.Tracker.RecordReading(reading, time.Now())
	writeJSON(w, http.StatusOK, SensorResponse{
		Temperature: reading.TemperatureC,
		Humidity:    reading.HumidityPct,
		Status:      "ok",
	})
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	var req RelayRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: "error", Message: msgInvalidRequest})
		return
	}

	var on bool
	switch req.State {
	case "on":
		on = true
	case "off":
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: "error", Message: msgInvalidRequest})
		return
	}

	s.deps.Scheduler.Override(on, s.deps.Clock.Millis())
	s.refresh()
	log.Printf("web: relay override %s", req.State)
	writeJSON(w, http.StatusOK, RelayResponse{Status: "ok", State: req.State})
}

func (s *Server) handleTimerGet(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Scheduler.State()
	writeJSON(w, http.StatusOK, TimerJSON{
		Enabled:      st.Enabled,
		OnDuration:   st.OnDurationMs / 1000,
		OffDuration:  st.OffDurationMs / 1000,
		CurrentState: st.CurrentState,
	})
}

func (s *Server) handleTimerPost(w http.ResponseWriter, r *http.Request) {
	var req TimerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: "error", Message: msgInvalidRequest})
		return
	}

	if tooLong(req.OnDuration) || tooLong(req.OffDuration) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: "error", Message: msgInvalidRequest})
		return
	}

	now := s.deps.Clock.Millis()
	if req.OnDuration != nil || req.OffDuration != nil {
		st := s.deps.Scheduler.State()
		onMs, offMs := st.OnDurationMs, st.OffDurationMs
		if req.OnDuration != nil {
			onMs = *req.OnDuration * 1000
		}
		if req.OffDuration != nil {
			offMs = *req.OffDuration * 1000
		}
		s.deps.Scheduler.SetDurations(onMs, offMs, now)
	}
	if req.Enabled != nil {
		s.deps.Scheduler.SetEnabled(*req.Enabled, now)
	}
	s.refresh()

	st := s.deps.Scheduler.State()
	log.Printf("web: timer enabled=%v on=%dms off=%dms", st.Enabled, st.OnDurationMs, st.OffDurationMs)
	writeJSON(w, http.StatusOK, OKResponse{Status: "ok"})
}

func (s *Server) handleHostnameGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HostnameJSON{Hostname: s.deps.Settings.Hostname()})
}

func (s *Server) handleHostnamePost(w http.ResponseWriter, r *http.Request) {
	var req HostnameJSON
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: "error", Message: msgInvalidRequest})
		return
	}
	if err := s.deps.Settings.SetHostname(req.Hostname); err != nil {
		if errors.Is(err, settings.ErrInvalidHostname) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Status: "error", Message: err.Error()})
			return
		}
		log.Printf("web: store hostname: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Status: "error", Message: "Failed to store hostname"})
		return
	}
	s.deps.Tracker.SetHostname(req.Hostname)
	log.Printf("web: hostname set to %s", req.Hostname)
	writeJSON(w, http.StatusOK, OKResponse{Status: "ok"})
}

// tooLong reports whether a duration in seconds overflows the millisecond
// counter the scheduler works in.
func tooLong(sec *uint32) bool {
	return sec != nil && *sec > maxDurationSec
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: write response: %v", err)
	}
}
