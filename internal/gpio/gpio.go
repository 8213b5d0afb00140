// Package gpio provides GPIO line control with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Electrical levels as used by the character device.
const (
	Low  = 0
	High = 1
)

// Output is a single line that is driven only while something is actuated
// and released to input otherwise.
type Output interface {
	// SetOutput switches the line to output, driving level immediately.
	SetOutput(level int) error

	// SetValue drives level. The line must already be an output.
	SetValue(level int) error

	// SetInput releases the line so it no longer drives either level.
	SetInput() error

	// Close releases the line registration.
	Close() error
}

// Input reads a digital sensor line.
type Input interface {
	// Read returns the logical state of the line. Polarity is applied by the
	// implementation, so true always means "asserted" (touched, wet, ...).
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	DefaultPinPump  = 17
	DefaultPinDHT   = 4
	DefaultPinSoil  = 14
	DefaultPinTouch = 6
)

// ChipName is the character device used for all lines.
const ChipName = "gpiochip0"
