// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Logic levels as reported by Pin.Get. Any other value from a driver is a fault.
const (
	Low  = 0
	High = 1
)

// Pin is a single bidirectional GPIO line.
type Pin interface {
	// SetInput switches the line to input (with pull-up where supported).
	SetInput() error

	// SetOutput switches the line to output, driving the given level.
	SetOutput(level int) error

	// Get samples the line level.
	Get() (int, error)

	// Set drives the line level. Only meaningful in output mode.
	Set(level int) error
}

// Default line offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip     = "gpiochip0"
	DefaultPinDHT   = 4  // sensor data line
	DefaultPinRelay = 17 // relay driver
	DefaultPinLED   = 27 // status LED
)

// Switch drives an output pin as an on/off actuator.
type Switch struct {
	pin Pin
}

// NewSwitch wraps a pin already configured as output.
func NewSwitch(pin Pin) *Switch {
	return &Switch{pin: pin}
}

// Set drives the pin high for on and low for off.
func (s *Switch) Set(on bool) error {
	if on {
		return s.pin.Set(High)
	}
	return s.pin.Set(Low)
}
