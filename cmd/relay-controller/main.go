// Command relay-controller drives a relay on a duty-cycle timer, samples a
// single-wire temperature/humidity sensor and publishes both to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/logic"
	"github.com/sweeney/relay-controller/internal/metrics"
	"github.com/sweeney/relay-controller/internal/mqtt"
	"github.com/sweeney/relay-controller/internal/sampler"
	"github.com/sweeney/relay-controller/internal/settings"
	"github.com/sweeney/relay-controller/internal/status"
	"github.com/sweeney/relay-controller/internal/timing"
	"github.com/sweeney/relay-controller/internal/web"
)

// eventBuffer holds relay transitions between the scheduler and the main loop.
const eventBuffer = 64

type options struct {
	chip      string
	pinDHT    int
	pinRelay  int
	pinLED    int
	tick      time.Duration
	sample    time.Duration
	broker    string
	httpAddr  string
	heartbeat time.Duration
	settings  string
	envFile   string
	simulate  bool
	readOnce  bool
}

func main() {
	var o options
	flag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO chip name")
	flag.IntVar(&o.pinDHT, "pin-dht", gpio.DefaultPinDHT, "BCM pin number for the sensor data line")
	flag.IntVar(&o.pinRelay, "pin-relay", gpio.DefaultPinRelay, "BCM pin number for the relay")
	flag.IntVar(&o.pinLED, "pin-led", gpio.DefaultPinLED, "BCM pin number for the status LED (-1 to disable)")
	flag.DurationVar(&o.tick, "tick", 100*time.Millisecond, "Duty-cycle scheduler tick interval")
	flag.DurationVar(&o.sample, "sample", 30*time.Second, "Sensor sampling interval (0 to disable)")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP address (empty to disable)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.settings, "settings", "/var/lib/relay-controller/settings.env", "Settings file (empty keeps settings in memory)")
	flag.StringVar(&o.envFile, "env-file", "/run/pi-helper.env", "pi-helper network env file")
	flag.BoolVar(&o.simulate, "simulate", false, "Use a simulated sensor and relay instead of GPIO")
	flag.BoolVar(&o.readOnce, "read-once", false, "Read the sensor once, print the result and exit")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// hardware is the set of lines the daemon drives.
type hardware struct {
	sensor gpio.Pin
	relay  gpio.Pin
	led    gpio.Pin // nil when disabled
	clock  timing.Clock
	crit   dht.CriticalSection
	close  func() error
}

func openHardware(o options) (*hardware, error) {
	clock := timing.NewRealClock()

	if o.simulate {
		sim := dht.NewSimulator(clock, dht.NewFrame(50, 0, 21, 5))
		return &hardware{
			sensor: sim,
			relay:  gpio.NewFakePin(gpio.Low),
			led:    gpio.NewFakePin(gpio.Low),
			clock:  clock,
			crit:   dht.NopSection{},
			close:  func() error { return nil },
		}, nil
	}

	chip, err := gpio.OpenChip(o.chip)
	if err != nil {
		return nil, err
	}
	hw := &hardware{clock: clock, crit: dht.ThreadLock{}, close: chip.Close}

	sensor, err := chip.Input(o.pinDHT)
	if err != nil {
		chip.Close()
		return nil, err
	}
	hw.sensor = sensor

	relay, err := chip.Output(o.pinRelay)
	if err != nil {
		chip.Close()
		return nil, err
	}
	hw.relay = relay

	if o.pinLED >= 0 {
		led, err := chip.Output(o.pinLED)
		if err != nil {
			chip.Close()
			return nil, err
		}
		hw.led = led
	}
	return hw, nil
}

func run(o options) error {
	hw, err := openHardware(o)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hw.close()

	decoder := dht.NewDecoder(hw.sensor, hw.clock, hw.crit)

	// Read once mode
	if o.readOnce {
		s := sampler.New(decoder, sampler.DefaultAttempts, sampler.DefaultRetryDelay, nil)
		ctx, cancel := context.WithTimeout(context.Background(), sampler.DefaultReadTimeout)
		defer cancel()
		r, err := s.Sample(ctx)
		if err != nil {
			return err
		}
		fmt.Println(r)
		return nil
	}

	store, err := settings.Open(o.settings)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	instanceID := uuid.NewString()
	m := metrics.New()

	tracker := status.NewTracker(instanceID, time.Now(), status.Config{
		TickMs:      o.tick.Milliseconds(),
		SampleMs:    o.sample.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		HTTPAddr:    o.httpAddr,
		PinDHT:      o.pinDHT,
		PinRelay:    o.pinRelay,
		Simulated:   o.simulate,
	})
	tracker.SetHostname(store.Hostname())
	if net := readNetworkInfo(o.envFile); net != nil {
		tracker.SetNetwork(net)
	}

	events := make(chan logic.Event, eventBuffer)
	sched := logic.NewScheduler(gpio.NewSwitch(hw.relay), func(ev logic.Event) {
		select {
		case events <- ev:
		default:
			log.Printf("scheduler: event queue full, dropped %s", ev.Type)
		}
	})

	smp := sampler.New(decoder, sampler.DefaultAttempts, sampler.DefaultRetryDelay, sampler.Observers{tracker, m})

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(o.broker, "relay-controller-"+instanceID[:8])
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	tracker.SetMQTTConnected(publisher.IsConnected())
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, web.Deps{
			Tracker:   tracker,
			Scheduler: sched,
			Sampler:   smp,
			Settings:  store,
			Clock:     hw.clock,
			Metrics:   m.Handler(),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", o.httpAddr)
	}

	var led logic.Output
	if hw.led != nil {
		led = gpio.NewSwitch(hw.led)
	}

	log.Printf("started: instance=%s tick=%v sample=%v broker=%s heartbeat=%v simulate=%v",
		instanceID, o.tick, o.sample, o.broker, o.heartbeat, o.simulate)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	var sampleC <-chan time.Time
	if o.sample > 0 {
		st := time.NewTicker(o.sample)
		defer st.Stop()
		sampleC = st.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop{
		sched:      sched,
		clock:      hw.clock,
		events:     events,
		sampler:    smp,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		metrics:    m,
		led:        led,
		heartbeat:  o.heartbeat,
		envFile:    o.envFile,
		now:        time.Now,
		tick:       ticker.C,
		sample:     sampleC,
		sig:        sigCh,
	})
}

// loop carries everything runLoop reads from and writes to.
type loop struct {
	sched      *logic.Scheduler
	clock      timing.Clock
	events     <-chan logic.Event
	sampler    web.Sampler
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	led        logic.Output // lit while MQTT is down; optional
	heartbeat  time.Duration
	envFile    string
	now        func() time.Time
	tick       <-chan time.Time
	sample     <-chan time.Time
	sig        <-chan os.Signal
}

type sampleResult struct {
	reading dht.Reading
	err     error
	at      time.Time
}

func runLoop(l loop) error {
	lastHeartbeat := l.now()
	results := make(chan sampleResult, 1)
	sampling := false
	ledKnown, ledOn := false, false

	for {
		select {
		case s := <-l.sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			l.refresh()
			snap := l.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case ev := <-l.events:
			log.Printf("event: %s source=%s phase=%s", ev.Type, ev.Source, ev.State.Phase())
			if l.metrics != nil {
				l.metrics.ObserveEvent(ev)
			}
			if err := l.publisher.PublishRelay(mqtt.RelayEvent{Timestamp: l.now(), Event: ev}); err != nil {
				log.Printf("publish error: %v", err)
			}

		case <-l.sample:
			if sampling {
				log.Printf("sensor: previous sample still running, skipping")
				continue
			}
			sampling = true
			go func() {
				r, err := l.sampler.Sample(context.Background())
				results <- sampleResult{reading: r, err: err, at: l.now()}
			}()

		case res := <-results:
			sampling = false
			if res.err != nil {
				log.Printf("sensor: %v", res.err)
				continue
			}
			log.Printf("sensor: %s", res.reading)
			l.tracker.RecordReading(res.reading, res.at)
			if err := l.publisher.PublishReading(mqtt.ReadingEvent{Timestamp: res.at, Reading: res.reading}); err != nil {
				log.Printf("publish error: %v", err)
			}

		case <-l.tick:
			l.sched.Tick(l.clock.Millis())
			connected := l.refresh()

			if l.led != nil && (!ledKnown || ledOn == connected) {
				if err := l.led.Set(!connected); err != nil {
					log.Printf("led: %v", err)
				} else {
					ledKnown, ledOn = true, !connected
				}
			}

			t := l.now()
			if l.heartbeat > 0 && t.Sub(lastHeartbeat) >= l.heartbeat {
				lastHeartbeat = t
				if net := readNetworkInfo(l.envFile); net != nil {
					l.tracker.SetNetwork(net)
				}
				snap := l.tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v relay=%s on=%d off=%d",
					snap.Uptime().Truncate(time.Second), status.RelayString(snap.Schedule.CurrentState),
					snap.Counts.RelayOn, snap.Counts.RelayOff)
				hb := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := l.publisher.PublishSystem(hb); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// refresh copies scheduler and connection state into the tracker and
// metrics, returning whether MQTT is connected.
func (l loop) refresh() bool {
	st := l.sched.State()
	l.tracker.UpdateSchedule(st, l.sched.Counts())
	connected := false
	if l.mqttStatus != nil {
		connected = l.mqttStatus.IsConnected()
	}
	l.tracker.SetMQTTConnected(connected)
	if l.metrics != nil {
		l.metrics.SetSchedule(st)
		l.metrics.SetMQTTConnected(connected)
	}
	return connected
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads pi-helper's env file, falling back to the process
// environment when the file is missing or unreadable.
func readNetworkInfo(path string) *status.NetworkInfo {
	get := os.Getenv
	if path != "" {
		if vals, err := godotenv.Read(path); err == nil {
			get = func(k string) string { return vals[k] }
		}
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}
