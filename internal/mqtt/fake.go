package mqtt

import "sync"

// FakePublisher records published events for test assertions.
// Safe for concurrent use; read the recorded slices after the publisher
// is quiescent.
type FakePublisher struct {
	mu sync.Mutex

	// RelayEvents contains all relay transitions that were published.
	RelayEvents []RelayEvent

	// Readings contains all sensor samples that were published.
	Readings []ReadingEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains every JSON payload that was published, in order.
	Payloads [][]byte

	// PublishError, if set, will be returned by every publish call.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishRelay records the relay event.
func (f *FakePublisher) PublishRelay(event RelayEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatRelayPayload(event)
	if err != nil {
		return err
	}
	f.RelayEvents = append(f.RelayEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishReading records the sample.
func (f *FakePublisher) PublishReading(event ReadingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatReadingPayload(event)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes the reported connection state.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.Connected = c
	f.mu.Unlock()
}

// SystemEventNames returns the recorded system event names in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Counts returns how many relay, reading and system events were recorded.
func (f *FakePublisher) Counts() (relay, readings, system int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.RelayEvents), len(f.Readings), len(f.SystemEvents)
}

// LastSystem returns the most recent system event, if any.
func (f *FakePublisher) LastSystem() (SystemEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.SystemEvents) == 0 {
		return SystemEvent{}, false
	}
	return f.SystemEvents[len(f.SystemEvents)-1], true
}
