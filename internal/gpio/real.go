//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip owns the lines requested from a Linux GPIO character device.
type Chip struct {
	chip  *gpiocdev.Chip
	lines []*Line
}

// Line is a requested GPIO line. It implements Pin.
type Line struct {
	line   *gpiocdev.Line
	offset int
}

// OpenChip opens a GPIO chip by name, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Input requests a line as input with pull-up. The single-wire sensor bus
// idles high, so the pull-up keeps the line defined when nothing drives it.
func (c *Chip) Input(offset int) (*Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	line := &Line{line: l, offset: offset}
	c.lines = append(c.lines, line)
	return line, nil
}

// Output requests a line as output, initially low.
func (c *Chip) Output(offset int) (*Line, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(Low))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	line := &Line{line: l, offset: offset}
	c.lines = append(c.lines, line)
	return line, nil
}

// SetInput switches the line to input with pull-up.
func (l *Line) SetInput() error {
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		return fmt.Errorf("pin %d to input: %w", l.offset, err)
	}
	return nil
}

// SetOutput switches the line to output, driving level.
func (l *Line) SetOutput(level int) error {
	if err := l.line.Reconfigure(gpiocdev.AsOutput(level)); err != nil {
		return fmt.Errorf("pin %d to output: %w", l.offset, err)
	}
	return nil
}

// Get reads the line value.
func (l *Line) Get() (int, error) {
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", l.offset, err)
	}
	return v, nil
}

// Set writes the line value.
func (l *Line) Set(level int) error {
	if err := l.line.SetValue(level); err != nil {
		return fmt.Errorf("write pin %d: %w", l.offset, err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures every line to input with pull-down (matching Pi boot defaults)
// before closing so the relay is not left energized across a restart.
func (c *Chip) Close() error {
	var errs []error

	for _, l := range c.lines {
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.offset, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
