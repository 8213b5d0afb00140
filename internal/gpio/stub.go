//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(pin int) (*RealOutput, error) {
	return nil, errUnsupported
}

func (o *RealOutput) SetOutput(level int) error { return errUnsupported }
func (o *RealOutput) SetValue(level int) error  { return errUnsupported }
func (o *RealOutput) SetInput() error           { return errUnsupported }
func (o *RealOutput) Close() error              { return nil }

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewRealInput returns an error on non-Linux platforms.
func NewRealInput(pin int, activeHigh bool) (*RealInput, error) {
	return nil, errUnsupported
}

func (i *RealInput) Read() (bool, error) { return false, errUnsupported }
func (i *RealInput) Close() error        { return nil }
