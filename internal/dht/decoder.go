package dht

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/relay-controller/internal/gpio"
	"github.com/sweeney/relay-controller/internal/timing"
)

// Protocol timing.
const (
	settleDelay   = 10 * time.Millisecond
	startLowUs    = 18000
	startHighUs   = 40
	waitTimeoutUs = 10000
	bitHoldUs     = 40
)

var errUndefinedLevel = errors.New("undefined line level")

// Decoder reads one sensor over a single GPIO line.
// It is not safe for concurrent use: one Read at a time owns the line.
type Decoder struct {
	pin     gpio.Pin
	clock   timing.Clock
	section CriticalSection
}

// NewDecoder creates a Decoder. A nil section disables critical-section guarding.
func NewDecoder(pin gpio.Pin, clock timing.Clock, section CriticalSection) *Decoder {
	if section == nil {
		section = NopSection{}
	}
	return &Decoder{pin: pin, clock: clock, section: section}
}

// Read performs a single exchange with the sensor.
// It returns ErrNotFound, ErrTimeout or ErrChecksumMismatch (wrapped in a
// *StepError) on failure. It never retries.
func (d *Decoder) Read() (Reading, error) {
	if err := d.idleCheck(); err != nil {
		return Reading{}, err
	}

	frame, err := d.exchange()
	if err != nil {
		return Reading{}, err
	}

	return DecodeFrame(frame)
}

// idleCheck confirms the line can be sampled before taking the critical section.
func (d *Decoder) idleCheck() error {
	if err := d.pin.SetInput(); err != nil {
		return &StepError{Step: StepIdle, Bit: -1, Err: ErrNotFound, Cause: err}
	}
	d.clock.Sleep(settleDelay)
	_, err := d.level(StepIdle, -1)
	return err
}

// exchange sends the start signal and clocks in a frame. The line is returned
// to input before the critical section is released, on every path.
func (d *Decoder) exchange() (Frame, error) {
	var frame Frame

	release := d.section.Enter()
	defer release()
	defer d.releaseLine()

	if err := d.start(); err != nil {
		return frame, err
	}

	if err := d.waitFor(gpio.Low, StepWaitAck, -1); err != nil {
		return frame, err
	}
	if err := d.waitFor(gpio.High, StepWaitAckHigh, -1); err != nil {
		return frame, err
	}
	if err := d.waitFor(gpio.Low, StepWaitAckLow, -1); err != nil {
		return frame, err
	}

	for bit := 0; bit < FrameSize*8; bit++ {
		if err := d.waitFor(gpio.High, StepReadBit, bit); err != nil {
			return frame, err
		}
		// A one holds the line high for ~70us, a zero for ~27us.
		d.clock.DelayMicros(bitHoldUs)
		v, err := d.level(StepReadBit, bit)
		if err != nil {
			return frame, err
		}
		frame[bit/8] <<= 1
		if v == gpio.High {
			frame[bit/8] |= 1
		}
		if err := d.waitFor(gpio.Low, StepReadBit, bit); err != nil {
			return frame, err
		}
	}

	return frame, nil
}

// start drives the host request: low 18ms, high 40us, then releases the line.
func (d *Decoder) start() error {
	if err := d.pin.SetOutput(gpio.Low); err != nil {
		return &StepError{Step: StepStart, Bit: -1, Err: ErrNotFound, Cause: err}
	}
	d.clock.DelayMicros(startLowUs)
	if err := d.pin.Set(gpio.High); err != nil {
		return &StepError{Step: StepStart, Bit: -1, Err: ErrNotFound, Cause: err}
	}
	d.clock.DelayMicros(startHighUs)
	if err := d.pin.SetInput(); err != nil {
		return &StepError{Step: StepStart, Bit: -1, Err: ErrNotFound, Cause: err}
	}
	return nil
}

// waitFor polls until the line reaches level or waitTimeoutUs passes.
// Only the first handshake wait reports a timeout as ErrNotFound.
func (d *Decoder) waitFor(level int, step Step, bit int) error {
	start := d.clock.Micros()
	for {
		v, err := d.level(step, bit)
		if err != nil {
			return err
		}
		if v == level {
			return nil
		}
		if d.clock.Micros()-start >= waitTimeoutUs {
			kind := ErrTimeout
			if step == StepWaitAck {
				kind = ErrNotFound
			}
			return &StepError{
				Step:  step,
				Bit:   bit,
				Err:   kind,
				Cause: fmt.Errorf("line not %s after %dus", levelName(level), waitTimeoutUs),
			}
		}
		d.clock.DelayMicros(1)
	}
}

// level samples the line. Driver errors and values outside {Low, High}
// are reported as ErrNotFound.
func (d *Decoder) level(step Step, bit int) (int, error) {
	v, err := d.pin.Get()
	if err != nil {
		return 0, &StepError{Step: step, Bit: bit, Err: ErrNotFound, Cause: err}
	}
	if v != gpio.Low && v != gpio.High {
		return 0, &StepError{Step: step, Bit: bit, Err: ErrNotFound, Cause: fmt.Errorf("%w: %d", errUndefinedLevel, v)}
	}
	return v, nil
}

func (d *Decoder) releaseLine() {
	if err := d.pin.SetInput(); err != nil {
		log.Printf("dht: restore input mode: %v", err)
	}
}

func levelName(level int) string {
	if level == gpio.High {
		return "high"
	}
	return "low"
}
