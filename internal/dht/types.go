// Package dht decodes the single-wire protocol spoken by DHT11/DHT22-style
// temperature and humidity sensors. The decoder bit-bangs one GPIO line and
// depends only on the gpio.Pin and timing.Clock abstractions, so the whole
// exchange can be replayed against the Simulator in tests.
package dht

import (
	"errors"
	"fmt"
)

// Reading is a verified sensor sample.
type Reading struct {
	TemperatureC float64
	HumidityPct  float64
}

// String formats the reading for logs.
func (r Reading) String() string {
	return fmt.Sprintf("temp=%.1fC humidity=%.1f%%", r.TemperatureC, r.HumidityPct)
}

// Decode errors. All are transient; callers may retry.
var (
	// ErrNotFound means no sensor answered or the line could not be read.
	ErrNotFound = errors.New("sensor not found")
	// ErrTimeout means the sensor answered but a protocol step overran its bound.
	ErrTimeout = errors.New("sensor timeout")
	// ErrChecksumMismatch means a full frame arrived but failed verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Step identifies a stage of the exchange.
type Step int

const (
	StepIdle Step = iota
	StepStart
	StepWaitAck
	StepWaitAckHigh
	StepWaitAckLow
	StepReadBit
	StepChecksum
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepStart:
		return "start"
	case StepWaitAck:
		return "wait-ack"
	case StepWaitAckHigh:
		return "wait-ack-high"
	case StepWaitAckLow:
		return "wait-ack-low"
	case StepReadBit:
		return "read-bit"
	case StepChecksum:
		return "checksum"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// StepError reports where an exchange failed.
// Err is one of ErrNotFound, ErrTimeout or ErrChecksumMismatch.
type StepError struct {
	Step  Step
	Bit   int // bit index for StepReadBit, -1 otherwise
	Err   error
	Cause error // underlying driver error, if any
}

func (e *StepError) Error() string {
	msg := "dht: " + e.Step.String()
	if e.Step == StepReadBit {
		msg += fmt.Sprintf(" %d", e.Bit)
	}
	msg += ": " + e.Err.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the driver cause to errors.Is.
func (e *StepError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Kind returns the sentinel for err, or nil if err is not a decode error.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrTimeout, ErrChecksumMismatch} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
