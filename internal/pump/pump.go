// Package pump drives the water pump relay.
//
// The relay line is only driven while the pump is actually running. At all
// other times it is released to input so the relay board's own pull resistor
// decides the level and nothing on the Pi side can energize the pump.
package pump

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/plant-controller/internal/gpio"
)

// ReleaseState describes what is known about the line after a safety release.
type ReleaseState string

const (
	// ReleaseNone means no release has been attempted yet.
	ReleaseNone ReleaseState = ""
	// Released means the line was confirmed reconfigured as input.
	Released ReleaseState = "released"
	// ReleaseUnknown means reconfiguring to input failed; the line may still be driven.
	ReleaseUnknown ReleaseState = "unknown"
)

// ReleaseResult is the outcome of the last attempt to put the line back to idle.
type ReleaseResult struct {
	State ReleaseState
	Err   error
	At    time.Time
}

// Config selects the pin, polarity and mock mode.
type Config struct {
	Pin       int
	ActiveLow bool // true: LOW energizes the pump
	Mock      bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleep replaces time.Sleep for the pulse duration.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithClock replaces time.Now for release timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the pump line. Pulse and Cleanup are serialized.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	pin   gpio.Output
	sleep func(time.Duration)
	now   func() time.Time
	last  ReleaseResult
}

// New creates a Controller. pin may be nil in mock mode, or when the GPIO
// line could not be requested; in the latter case every pulse fails.
func New(cfg Config, pin gpio.Output, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		pin:   pin,
		sleep: time.Sleep,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mock reports whether the controller runs without hardware.
func (c *Controller) Mock() bool {
	return c.cfg.Mock
}

// Pin returns the configured BCM pin number.
func (c *Controller) Pin() int {
	return c.cfg.Pin
}

func (c *Controller) offLevel() int {
	if c.cfg.ActiveLow {
		return gpio.High
	}
	return gpio.Low
}

func (c *Controller) onLevel() int {
	if c.cfg.ActiveLow {
		return gpio.Low
	}
	return gpio.High
}

// Init drives the line OFF once as an output, then releases it to input.
// It never panics; failures are reported through ok and msg.
func (c *Controller) Init() (ok bool, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mock {
		log.Printf("pump: mock mode on")
		return true, "mock"
	}
	if c.pin == nil {
		return false, "gpio not available"
	}

	off := c.offLevel()
	if err := c.drive(off); err != nil {
		c.release()
		return false, err.Error()
	}
	if err := c.pin.SetInput(); err != nil {
		c.record(ReleaseUnknown, err)
		return false, err.Error()
	}
	c.record(Released, nil)

	log.Printf("pump: init ok pin=%d active_low=%v (idle=input)", c.cfg.Pin, c.cfg.ActiveLow)
	return true, "ok"
}

// Pulse runs the pump for d. The calling goroutine is blocked for the
// whole duration. Whatever happens, the line is released before returning.
func (c *Controller) Pulse(d time.Duration) (ok bool, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mock {
		log.Printf("pump: mock pulse %v", d)
		c.sleep(d)
		return true, "mock"
	}
	if c.pin == nil {
		return false, "pump not initialized"
	}

	if err := c.pulse(d); err != nil {
		log.Printf("pump: pulse failed: %v", err)
		if r := c.release(); r.State == ReleaseUnknown {
			return false, fmt.Sprintf("%v (release failed: %v)", err, r.Err)
		}
		return false, err.Error()
	}
	return true, "ok"
}

func (c *Controller) pulse(d time.Duration) error {
	off, on := c.offLevel(), c.onLevel()

	if err := c.drive(off); err != nil {
		return err
	}
	if err := c.pin.SetValue(on); err != nil {
		return fmt.Errorf("pump on: %w", err)
	}
	c.sleep(d)
	if err := c.pin.SetValue(off); err != nil {
		return fmt.Errorf("pump off: %w", err)
	}
	if err := c.pin.SetInput(); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	c.record(Released, nil)
	return nil
}

// drive makes the line an output at level, setting the value explicitly as
// well in case the driver ignored the initial level.
func (c *Controller) drive(level int) error {
	if err := c.pin.SetOutput(level); err != nil {
		return fmt.Errorf("configure output: %w", err)
	}
	if err := c.pin.SetValue(level); err != nil {
		return fmt.Errorf("set level %d: %w", level, err)
	}
	return nil
}

// release is the safety sequence: OFF as output, then input. Every step is
// attempted even if an earlier one failed; only the final input
// reconfiguration decides whether the line is known to be idle.
func (c *Controller) release() ReleaseResult {
	var errs []error
	if err := c.drive(c.offLevel()); err != nil {
		errs = append(errs, err)
	}
	if err := c.pin.SetInput(); err != nil {
		errs = append(errs, fmt.Errorf("release: %w", err))
		return c.record(ReleaseUnknown, errors.Join(errs...))
	}
	if len(errs) > 0 {
		log.Printf("pump: released with errors: %v", errors.Join(errs...))
	}
	return c.record(Released, nil)
}

func (c *Controller) record(state ReleaseState, err error) ReleaseResult {
	c.last = ReleaseResult{State: state, Err: err, At: c.now()}
	if state == ReleaseUnknown {
		log.Printf("pump: line state unknown after release: %v", err)
	}
	return c.last
}

// LastRelease returns the outcome of the most recent release.
func (c *Controller) LastRelease() ReleaseResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Cleanup forces the pump OFF, releases the line and closes it.
// It is a no-op in mock mode.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mock || c.pin == nil {
		return
	}
	c.release()
	if err := c.pin.Close(); err != nil {
		log.Printf("pump: close: %v", err)
	}
}
