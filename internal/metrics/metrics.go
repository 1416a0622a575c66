// Package metrics exposes controller counters and gauges in Prometheus format.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/logic"
)

// Read result labels.
const (
	ResultOK               = "ok"
	ResultNotFound         = "not_found"
	ResultTimeout          = "timeout"
	ResultChecksumMismatch = "checksum_mismatch"
	ResultOther            = "other"
)

// Namespace prefixes every controller metric name.
const Namespace = "relay_controller"

// Metrics holds the controller's collectors and the registry that serves
// them. Methods are safe for concurrent use.
type Metrics struct {
	registry      *prometheus.Registry
	reads         *prometheus.CounterVec
	temperature   prometheus.Gauge
	humidity      prometheus.Gauge
	relayOn       prometheus.Gauge
	timerEnabled  prometheus.Gauge
	transitions   *prometheus.CounterVec
	mqttConnected prometheus.Gauge
}

// New creates Metrics on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sensor_reads_total",
			Help:      "Sensor read attempts by result.",
		}, []string{"result"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sensor_temperature_celsius",
			Help:      "Last successfully decoded temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sensor_humidity_percent",
			Help:      "Last successfully decoded relative humidity.",
		}),
		relayOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "relay_on",
			Help:      "Relay output state (1 energized, 0 off).",
		}),
		timerEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "relay_timer_enabled",
			Help:      "Whether the duty-cycle timer drives the relay.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_transitions_total",
			Help:      "Relay transitions by resulting state and cause.",
		}, []string{"state", "source"}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "mqtt_connected",
			Help:      "MQTT broker connection state.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reads,
		m.temperature,
		m.humidity,
		m.relayOn,
		m.timerEnabled,
		m.transitions,
		m.mqttConnected,
	)
	return m
}

// ObserveRead records one decode attempt.
func (m *Metrics) ObserveRead(r dht.Reading, err error) {
	m.reads.WithLabelValues(ResultLabel(err)).Inc()
	if err != nil {
		return
	}
	m.temperature.Set(r.TemperatureC)
	m.humidity.Set(r.HumidityPct)
}

// ObserveEvent records a relay transition.
func (m *Metrics) ObserveEvent(ev logic.Event) {
	m.transitions.WithLabelValues(string(ev.Type), string(ev.Source)).Inc()
	m.SetSchedule(ev.State)
}

// SetSchedule mirrors the scheduler state into gauges.
func (m *Metrics) SetSchedule(st logic.State) {
	m.relayOn.Set(boolToFloat(st.CurrentState))
	m.timerEnabled.Set(boolToFloat(st.Enabled))
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	m.mqttConnected.Set(boolToFloat(connected))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ResultLabel maps a decode error to its result label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, dht.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, dht.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, dht.ErrChecksumMismatch):
		return ResultChecksumMismatch
	}
	return ResultOther
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
