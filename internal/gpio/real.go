//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput controls a line on actual hardware using the Linux GPIO character device.
type RealOutput struct {
	pin  int
	line *gpiocdev.Line
}

// NewRealOutput requests pin as an input so nothing is driven until the
// owner explicitly switches it to output.
func NewRealOutput(pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(ChipName, pin, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{pin: pin, line: line}, nil
}

// SetOutput reconfigures the line as an output driving level.
func (o *RealOutput) SetOutput(level int) error {
	if err := o.line.Reconfigure(gpiocdev.AsOutput(level)); err != nil {
		return fmt.Errorf("pin %d as output: %w", o.pin, err)
	}
	return nil
}

// SetValue drives level on the line.
func (o *RealOutput) SetValue(level int) error {
	if err := o.line.SetValue(level); err != nil {
		return fmt.Errorf("pin %d set %d: %w", o.pin, level, err)
	}
	return nil
}

// SetInput reconfigures the line as an input, releasing it.
func (o *RealOutput) SetInput() error {
	if err := o.line.Reconfigure(gpiocdev.AsInput); err != nil {
		return fmt.Errorf("pin %d as input: %w", o.pin, err)
	}
	return nil
}

// Close releases the line. The line is reconfigured as input first so it is
// never left driving after the process exits.
func (o *RealOutput) Close() error {
	var errs []error
	if err := o.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.pin, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", o.pin, err))
	}
	return errors.Join(errs...)
}

// RealInput reads a digital sensor line.
type RealInput struct {
	pin        int
	activeHigh bool
	line       *gpiocdev.Line
}

// NewRealInput requests pin as input with pull-down to match Pi boot defaults.
// activeHigh selects whether a raw 1 reads as true.
func NewRealInput(pin int, activeHigh bool) (*RealInput, error) {
	line, err := gpiocdev.RequestLine(ChipName, pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &RealInput{pin: pin, activeHigh: activeHigh, line: line}, nil
}

// Read returns the logical state after applying polarity.
func (i *RealInput) Read() (bool, error) {
	raw, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", i.pin, err)
	}
	return (raw == High) == i.activeHigh, nil
}

// Close releases the line.
func (i *RealInput) Close() error {
	if err := i.line.Close(); err != nil {
		return fmt.Errorf("close pin %d: %w", i.pin, err)
	}
	return nil
}
