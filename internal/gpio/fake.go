package gpio

import "sync"

// Direction of a fake pin.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
)

func (d Direction) String() string {
	if d == DirOutput {
		return "output"
	}
	return "input"
}

// FakePin is a test double that records writes and returns a configured level.
type FakePin struct {
	mu sync.Mutex

	// Dir is the current direction.
	Dir Direction

	// Level is returned by Get and updated by Set/SetOutput.
	Level int

	// Writes records every level driven, in order.
	Writes []int

	// GetError, if set, is returned by Get.
	GetError error

	// SetError, if set, is returned by Set and SetOutput.
	SetError error
}

// NewFakePin creates an input FakePin reading level.
func NewFakePin(level int) *FakePin {
	return &FakePin{Level: level}
}

// SetInput switches the fake to input.
func (f *FakePin) SetInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dir = DirInput
	return nil
}

// SetOutput switches the fake to output and records level.
func (f *FakePin) SetOutput(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Dir = DirOutput
	f.Level = level
	f.Writes = append(f.Writes, level)
	return nil
}

// Get returns the configured level.
func (f *FakePin) Get() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetError != nil {
		return 0, f.GetError
	}
	return f.Level, nil
}

// Set records level.
func (f *FakePin) Set(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Level = level
	f.Writes = append(f.Writes, level)
	return nil
}

// Snapshot returns the current level and a copy of the write history.
func (f *FakePin) Snapshot() (int, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Level, append([]int(nil), f.Writes...)
}
