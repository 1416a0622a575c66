//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// Line is not available on non-Linux platforms.
type Line struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

func (c *Chip) Input(offset int) (*Line, error)  { return nil, errUnsupported }
func (c *Chip) Output(offset int) (*Line, error) { return nil, errUnsupported }
func (c *Chip) Close() error                     { return nil }

func (l *Line) SetInput() error           { return errUnsupported }
func (l *Line) SetOutput(level int) error { return errUnsupported }
func (l *Line) Get() (int, error)         { return 0, errUnsupported }
func (l *Line) Set(level int) error       { return errUnsupported }
