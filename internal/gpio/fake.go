package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// Direction of a fake line.
type Direction string

const (
	DirUnset  Direction = ""
	DirInput  Direction = "input"
	DirOutput Direction = "output"
)

// FakeOutput is a test double that records every operation in order.
type FakeOutput struct {
	mu sync.Mutex

	// Ops contains one entry per call, e.g. "output(1)", "set(0)", "input", "close".
	Ops []string

	// Dir and Level reflect the last successful operations.
	Dir   Direction
	Level int

	// Closed tracks if Close was called.
	Closed bool

	// FailOn, if set, makes every call of the named operation
	// ("output", "set", "input", "close") return the mapped error.
	FailOn map[string]error

	// FailAt, if set, makes the n-th call overall (0-based) return the mapped error.
	FailAt map[int]error
}

// NewFakeOutput creates a FakeOutput with no direction set.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

func (f *FakeOutput) record(name, entry string) error {
	idx := len(f.Ops)
	f.Ops = append(f.Ops, entry)
	if err, ok := f.FailAt[idx]; ok {
		return err
	}
	if err, ok := f.FailOn[name]; ok {
		return err
	}
	return nil
}

// SetOutput records the call and switches to output.
func (f *FakeOutput) SetOutput(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("output", fmt.Sprintf("output(%d)", level)); err != nil {
		return err
	}
	f.Dir = DirOutput
	f.Level = level
	return nil
}

// SetValue records the call. It fails if the line is not an output.
func (f *FakeOutput) SetValue(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set", fmt.Sprintf("set(%d)", level)); err != nil {
		return err
	}
	if f.Dir != DirOutput {
		return errors.New("set value on non-output line")
	}
	f.Level = level
	return nil
}

// SetInput records the call and releases the line.
func (f *FakeOutput) SetInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("input", "input"); err != nil {
		return err
	}
	f.Dir = DirInput
	return nil
}

// Close marks the line as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("close", "close"); err != nil {
		return err
	}
	f.Closed = true
	return nil
}

// Driving reports whether the line is currently an output.
func (f *FakeOutput) Driving() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Dir == DirOutput
}

// Calls returns a copy of the operation log.
func (f *FakeOutput) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Ops...)
}

// Reset clears the operation log and injected failures.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = nil
	f.Dir = DirUnset
	f.Level = 0
	f.Closed = false
	f.FailOn = nil
	f.FailAt = nil
}

// FakeInput is a test double that returns scripted logical values.
type FakeInput struct {
	// Values contains scripted values to return.
	// Each call to Read() consumes the next value; the last one repeats.
	Values []bool

	index int

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by Read().
	ReadError error
}

// NewFakeInput creates a FakeInput with the given values.
func NewFakeInput(values ...bool) *FakeInput {
	return &FakeInput{Values: values}
}

// Read returns the next scripted value.
func (f *FakeInput) Read() (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Values) == 0 {
		return false, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}
