package dht

import "fmt"

// FrameSize is the number of bytes in one sensor frame.
const FrameSize = 5

// Frame is a raw sensor frame:
// humidity int, humidity frac, temp int, temp frac, checksum.
type Frame [FrameSize]byte

// Checksum returns the sum of the four data bytes modulo 256.
func (f Frame) Checksum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Valid reports whether the trailing byte matches the checksum.
func (f Frame) Valid() bool {
	return f[4] == f.Checksum()
}

// DecodeFrame verifies f and converts it to a Reading.
// Values are passed through without range checks.
func DecodeFrame(f Frame) (Reading, error) {
	if !f.Valid() {
		return Reading{}, &StepError{
			Step:  StepChecksum,
			Bit:   -1,
			Err:   ErrChecksumMismatch,
			Cause: fmt.Errorf("got 0x%02x, want 0x%02x", f[4], f.Checksum()),
		}
	}
	return Reading{
		HumidityPct:  float64(f[0]) + float64(f[1])*0.1,
		TemperatureC: float64(f[2]) + float64(f[3])*0.1,
	}, nil
}

// NewFrame builds a valid frame for the given data bytes.
func NewFrame(humInt, humFrac, tempInt, tempFrac byte) Frame {
	f := Frame{humInt, humFrac, tempInt, tempFrac, 0}
	f[4] = f.Checksum()
	return f
}
