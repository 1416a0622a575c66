package dht

import (
	"sync"

	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/timing"
)

// Sensor-side pulse lengths in microseconds.
const (
	simPresenceUs = 30
	simAckLowUs   = 80
	simAckHighUs  = 80
	simBitLowUs   = 50
	simZeroHighUs = 27
	simOneHighUs  = 70
)

// Response segment counts for Simulator.StallAfter. The response is laid out
// as presence-high, ack-low, ack-high, then low/high per bit. After the last
// bit the line is held low until the next start signal.
const (
	StallBeforeAck  = 1 // line stays high: no acknowledgement
	StallInAckLow   = 2 // line stuck low after the ack starts
	StallInAckHigh  = 3 // line stuck high after the ack
	firstBitSegment = 3
	segmentsPerBit  = 2
)

// StallBeforeBitHigh returns the StallAfter value that freezes the line low
// before bit rises.
func StallBeforeBitHigh(bit int) int {
	return firstBitSegment + segmentsPerBit*bit + 1
}

// StallInBitHigh returns the StallAfter value that freezes the line high
// during bit.
func StallInBitHigh(bit int) int {
	return firstBitSegment + segmentsPerBit*bit + 2
}

type segment struct {
	level int
	us    uint64
}

// Simulator is a gpio.Pin that behaves like a sensor on the other end of the
// line. Switching the line from output back to input is taken as the end of
// a start signal, after which the simulator plays back Frame as a waveform
// timed against its clock.
type Simulator struct {
	mu    sync.Mutex
	clock timing.Clock

	// Frame is the data played back on the next exchange.
	Frame Frame

	// Absent keeps the line idle-high forever, like a disconnected sensor.
	Absent bool

	// Undefined makes Get return a level outside {Low, High}.
	Undefined bool

	// GetError, if set, is returned by Get.
	GetError error

	// StallAfter, if positive, freezes the line at the level of the last
	// played segment once that many response segments have elapsed.
	StallAfter int

	dir        gpio.Direction
	driven     int
	responding bool
	respondAt  uint64
	segments   []segment

	// Starts counts start signals received.
	Starts int
}

// NewSimulator creates a Simulator that will answer with frame.
func NewSimulator(clock timing.Clock, frame Frame) *Simulator {
	return &Simulator{clock: clock, Frame: frame, driven: gpio.High}
}

// SetFrame replaces the frame for subsequent exchanges.
func (s *Simulator) SetFrame(f Frame) {
	s.mu.Lock()
	s.Frame = f
	s.mu.Unlock()
}

// Direction reports the current line direction.
func (s *Simulator) Direction() gpio.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// SetInput releases the line. After a start signal this begins the response.
func (s *Simulator) SetInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == gpio.DirOutput {
		s.Starts++
		s.responding = true
		s.respondAt = s.clock.Micros()
		s.segments = s.waveform()
	}
	s.dir = gpio.DirInput
	return nil
}

// SetOutput drives the line from the host side.
func (s *Simulator) SetOutput(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = gpio.DirOutput
	s.driven = level
	s.responding = false
	return nil
}

// Set drives the line level.
func (s *Simulator) Set(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driven = level
	return nil
}

// Get samples the line as the host would see it.
func (s *Simulator) Get() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.GetError != nil {
		return 0, s.GetError
	}
	if s.Undefined {
		return 2, nil
	}
	if s.dir == gpio.DirOutput {
		return s.driven, nil
	}
	if !s.responding || s.Absent {
		return gpio.High, nil
	}

	segs := s.segments
	stalled := s.StallAfter > 0 && s.StallAfter <= len(segs)
	if stalled {
		segs = segs[:s.StallAfter]
	}

	t := s.clock.Micros() - s.respondAt
	for _, seg := range segs {
		if t < seg.us {
			return seg.level, nil
		}
		t -= seg.us
	}
	if stalled {
		return segs[len(segs)-1].level, nil
	}
	return gpio.Low, nil
}

func (s *Simulator) waveform() []segment {
	segs := []segment{
		{gpio.High, simPresenceUs},
		{gpio.Low, simAckLowUs},
		{gpio.High, simAckHighUs},
	}
	for _, b := range s.Frame {
		for i := 7; i >= 0; i-- {
			high := uint64(simZeroHighUs)
			if b&(1<<uint(i)) != 0 {
				high = simOneHighUs
			}
			segs = append(segs, segment{gpio.Low, simBitLowUs}, segment{gpio.High, high})
		}
	}
	return segs
}
