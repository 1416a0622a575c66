package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/logic"
	"github.com/sweeney/relay-controller/internal/metrics"
	"github.com/sweeney/relay-controller/internal/mqtt"
	"github.com/sweeney/relay-controller/internal/status"
	"github.com/sweeney/relay-controller/internal/timing"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-helper.env")
	content := "NETWORK_TYPE=wifi\nNETWORK_IP=192.168.1.100\nNETWORK_STATUS=connected\n" +
		"NETWORK_GATEWAY=192.168.1.1\nNETWORK_WIFI_STATUS=connected\nNETWORK_WIFI_SSID=\"My Network\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// The file wins over the process environment.
	t.Setenv(envNetworkIP, "10.0.0.1")

	info := readNetworkInfo(path)
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "My Network",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoFallsBackToEnv(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "ethernet")

	info := readNetworkInfo(filepath.Join(t.TempDir(), "missing.env"))
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo from environment")
	}
	if info.Status != "connected" || info.Type != "ethernet" {
		t.Errorf("got %+v", *info)
	}
	if info.IP != "" || info.SSID != "" {
		t.Errorf("unset fields should be empty: %+v", *info)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(""); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

// --- runLoop tests ---

// manualNow is a settable wall clock for heartbeat timing.
type manualNow struct {
	mu sync.Mutex
	t  time.Time
}

func (m *manualNow) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualNow) advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

type stubSampler struct {
	mu      sync.Mutex
	reading dht.Reading
	err     error
	calls   int
}

func (s *stubSampler) Sample(ctx context.Context) (dht.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reading, s.err
}

func (s *stubSampler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type harness struct {
	l       loop
	pub     *mqtt.FakePublisher
	relay   *gpio.FakePin
	ledPin  *gpio.FakePin
	clock   *timing.FakeClock
	wall    *manualNow
	smp     *stubSampler
	tick    chan time.Time
	sample  chan time.Time
	sig     chan os.Signal
	errCh   chan error
}

func newHarness(t *testing.T, heartbeat time.Duration) *harness {
	t.Helper()
	h := &harness{
		pub:    mqtt.NewFakePublisher(),
		relay:  gpio.NewFakePin(gpio.Low),
		ledPin: gpio.NewFakePin(gpio.Low),
		clock:  timing.NewFakeClock(0),
		wall:   &manualNow{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		smp:    &stubSampler{reading: dht.Reading{TemperatureC: 21.5, HumidityPct: 50}},
		tick:   make(chan time.Time),
		sample: make(chan time.Time),
		sig:    make(chan os.Signal),
		errCh:  make(chan error, 1),
	}

	events := make(chan logic.Event, eventBuffer)
	sched := logic.NewScheduler(gpio.NewSwitch(h.relay), func(ev logic.Event) {
		events <- ev
	})
	tracker := status.NewTracker("test", h.wall.now(), status.Config{TickMs: 100})

	h.l = loop{
		sched:      sched,
		clock:      h.clock,
		events:     events,
		sampler:    h.smp,
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    tracker,
		metrics:    metrics.New(),
		led:        gpio.NewSwitch(h.ledPin),
		heartbeat:  heartbeat,
		envFile:    filepath.Join(t.TempDir(), "missing.env"),
		now:        h.wall.now,
		tick:       h.tick,
		sample:     h.sample,
		sig:        h.sig,
	}
	return h
}

func (h *harness) start() {
	go func() {
		h.errCh <- runLoop(h.l)
	}()
}

func (h *harness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after signal")
	}
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	h := newHarness(t, 0)
	h.start()
	h.stop(t, syscall.SIGTERM)

	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [SHUTDOWN]", names)
	}
	ev, _ := h.pub.LastSystem()
	if ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("shutdown event: reason=%q retained=%v", ev.Reason, ev.Retained)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(ev.RawPayload, &sj); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.Relay.State != "OFF" {
		t.Errorf("payload relay state: %q", sj.Status.Relay.State)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := newHarness(t, 0)
	h.start()
	h.stop(t, syscall.SIGINT)

	ev, ok := h.pub.LastSystem()
	if !ok || ev.Reason != "SIGINT" {
		t.Errorf("shutdown event: %+v", ev)
	}
}

func TestRunLoopTimerTransitionsPublished(t *testing.T) {
	h := newHarness(t, 0)
	h.l.sched.SetDurations(1000, 1000, 0)
	h.l.sched.SetEnabled(true, 0)
	h.start()

	h.clock.Advance(999 * time.Millisecond)
	h.tick <- time.Time{}
	h.clock.Advance(time.Millisecond)
	h.tick <- time.Time{}
	waitFor(t, "RELAY_ON publish", func() bool { r, _, _ := h.pub.Counts(); return r == 1 })

	h.clock.Advance(1000 * time.Millisecond)
	h.tick <- time.Time{}
	waitFor(t, "RELAY_OFF publish", func() bool { r, _, _ := h.pub.Counts(); return r == 2 })

	h.stop(t, syscall.SIGTERM)

	if got := h.pub.RelayEvents[0].Event; got.Type != logic.EventRelayOn || got.Source != logic.SourceTimer || got.AtMs != 1000 {
		t.Errorf("first event: %+v", got)
	}
	if got := h.pub.RelayEvents[1].Event; got.Type != logic.EventRelayOff || got.AtMs != 2000 {
		t.Errorf("second event: %+v", got)
	}
	if _, writes := h.relay.Snapshot(); len(writes) != 3 || writes[1] != gpio.High || writes[2] != gpio.Low {
		t.Errorf("relay writes: %v (initial off, on, off)", writes)
	}
}

func TestRunLoopOverridePublished(t *testing.T) {
	h := newHarness(t, 0)
	h.start()

	// As the HTTP handler would.
	h.l.sched.Override(true, h.clock.Millis())
	waitFor(t, "override publish", func() bool { r, _, _ := h.pub.Counts(); return r == 1 })
	h.stop(t, syscall.SIGTERM)

	ev := h.pub.RelayEvents[0].Event
	if ev.Source != logic.SourceOverride || ev.Type != logic.EventRelayOn {
		t.Errorf("event: %+v", ev)
	}
}

func TestRunLoopTrackerFollowsScheduler(t *testing.T) {
	h := newHarness(t, 0)
	h.l.sched.SetDurations(0, 0, 0)
	h.l.sched.SetEnabled(true, 0)
	h.start()

	h.clock.Advance(time.Millisecond)
	h.tick <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	snap := h.l.tracker.Snapshot()
	if !snap.Schedule.Enabled || !snap.Schedule.CurrentState {
		t.Errorf("tracker schedule: %+v", snap.Schedule)
	}
	if snap.Counts.RelayOn != 1 {
		t.Errorf("tracker counts: %+v", snap.Counts)
	}
}

func TestRunLoopSamplePublished(t *testing.T) {
	h := newHarness(t, 0)
	h.start()

	h.sample <- time.Time{}
	waitFor(t, "reading publish", func() bool { _, n, _ := h.pub.Counts(); return n == 1 })
	h.stop(t, syscall.SIGTERM)

	if got := h.pub.Readings[0].Reading; got.TemperatureC != 21.5 || got.HumidityPct != 50 {
		t.Errorf("published reading: %+v", got)
	}
	snap := h.l.tracker.Snapshot()
	if snap.Reading == nil || snap.Reading.TemperatureC != 21.5 {
		t.Errorf("tracker reading: %+v", snap.Reading)
	}
}

func TestRunLoopSampleErrorNotPublished(t *testing.T) {
	h := newHarness(t, 0)
	h.smp.err = &dht.StepError{Step: dht.StepWaitAck, Bit: -1, Err: dht.ErrNotFound}
	h.start()

	h.sample <- time.Time{}
	waitFor(t, "sample attempt", func() bool { return h.smp.callCount() == 1 })
	h.stop(t, syscall.SIGTERM)

	if _, n, _ := h.pub.Counts(); n != 0 {
		t.Errorf("readings published after failure: %d", n)
	}
	if h.l.tracker.Snapshot().Reading != nil {
		t.Error("tracker should have no reading")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start()
	// The first tick guarantees runLoop has taken its start time.
	h.tick <- time.Time{}

	h.wall.advance(59 * time.Second)
	h.tick <- time.Time{}
	h.wall.advance(time.Second)
	h.tick <- time.Time{}
	h.wall.advance(30 * time.Second)
	h.tick <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	names := h.pub.SystemEventNames()
	if len(names) != 2 || names[0] != "HEARTBEAT" || names[1] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [HEARTBEAT SHUTDOWN]", names)
	}
	hb := h.pub.SystemEvents[0]
	if hb.Retained {
		t.Error("heartbeat should not be retained")
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &sj); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" || sj.Status.InstanceID != "test" {
		t.Errorf("heartbeat payload: event=%q instance=%q", sj.Status.Event, sj.Status.InstanceID)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	h := newHarness(t, time.Minute)
	path := filepath.Join(t.TempDir(), "pi-helper.env")
	if err := os.WriteFile(path, []byte("NETWORK_STATUS=connected\nNETWORK_IP=192.168.1.42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.l.envFile = path
	h.start()
	h.tick <- time.Time{}

	h.wall.advance(time.Minute)
	h.tick <- time.Time{}
	h.stop(t, syscall.SIGTERM)

	var sj status.StatusJSON
	if err := json.Unmarshal(h.pub.SystemEvents[0].RawPayload, &sj); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if sj.Status.Network == nil || sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("network: %+v", sj.Status.Network)
	}
}

func TestRunLoopStatusLEDFollowsMQTT(t *testing.T) {
	h := newHarness(t, 0)
	h.start()

	// Disconnected: LED lit. The second tick only returns once the first
	// has been handled.
	h.tick <- time.Time{}
	h.tick <- time.Time{}
	if level, writes := h.ledPin.Snapshot(); level != gpio.High || len(writes) != 1 {
		t.Errorf("disconnected: level=%d writes=%v", level, writes)
	}

	h.pub.SetConnected(true)
	h.tick <- time.Time{}
	h.tick <- time.Time{}
	if level, writes := h.ledPin.Snapshot(); level != gpio.Low || len(writes) != 2 {
		t.Errorf("connected: level=%d writes=%v", level, writes)
	}

	h.stop(t, syscall.SIGTERM)
	if !h.l.tracker.Snapshot().MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
}

func TestRunLoopPublishError(t *testing.T) {
	h := newHarness(t, 0)
	h.pub.PublishError = errors.New("broker down")
	h.l.sched.SetDurations(0, 0, 0)
	h.l.sched.SetEnabled(true, 0)
	h.start()

	// Transitions keep happening even though every publish fails.
	for i := 0; i < 4; i++ {
		h.clock.Advance(time.Millisecond)
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	if c := h.l.sched.Counts(); c.RelayOn != 2 || c.RelayOff != 2 {
		t.Errorf("counts: %+v", c)
	}
	if r, n, s := h.pub.Counts(); r+n+s != 0 {
		t.Errorf("nothing should be recorded: %d/%d/%d", r, n, s)
	}
}
