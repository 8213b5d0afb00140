//go:build !linux

package sensor

import (
	"errors"
	"time"
)

// LineCapturer is not available on non-Linux platforms.
type LineCapturer struct {
	Pin int
}

// Capture returns an error on non-Linux platforms.
func (c *LineCapturer) Capture() ([]time.Duration, error) {
	return nil, errors.New("dht22: not supported on this platform (requires Linux)")
}
