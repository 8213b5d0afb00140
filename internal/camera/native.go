package camera

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State of the native camera handle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// ResetResult records the outcome of the most recent hard reset.
type ResetResult struct {
	At  time.Time
	OK  bool
	Err error
}

// NativeOptions tune the native provider.
type NativeOptions struct {
	Attempts int           // capture tries per request
	Settle   time.Duration // pause after start and between tries
	Deadline time.Duration // bound on one request once the handle lock is held

	// BreakerFailures consecutive failed requests open the breaker for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// OnReset is called after every hard reset.
	OnReset func(ok bool)
}

// DefaultNativeOptions returns the production tuning.
func DefaultNativeOptions() NativeOptions {
	return NativeOptions{
		Attempts:        2,
		Settle:          400 * time.Millisecond,
		Deadline:        5 * time.Second,
		BreakerFailures: 3,
		BreakerCooldown: 30 * time.Second,
	}
}

// NativeProvider owns the process-wide camera handle. All use of the handle
// is serialized by mu; concurrent callers block.
type NativeProvider struct {
	newDevice DeviceFactory
	opts      NativeOptions
	breaker   *gobreaker.CircuitBreaker
	now       func() time.Time

	mu  sync.Mutex // guards dev
	dev Device

	hmu       sync.Mutex // guards the fields below; never held across device calls
	state     State
	lastReset ResetResult
}

// NewNativeProvider creates a provider that opens devices lazily via newDevice.
func NewNativeProvider(newDevice DeviceFactory, opts NativeOptions) *NativeProvider {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 5 * time.Second
	}
	n := &NativeProvider{
		newDevice: newDevice,
		opts:      opts,
		now:       time.Now,
		state:     StateUninitialized,
	}
	if opts.BreakerFailures > 0 {
		n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    SourceNative,
			Timeout: opts.BreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= opts.BreakerFailures
			},
			// A caller that went away says nothing about the camera.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("camera: %s breaker %s -> %s", name, from, to)
				if to == gobreaker.StateOpen {
					n.release()
				}
			},
		})
	}
	return n
}

// Name implements Provider.
func (n *NativeProvider) Name() string { return SourceNative }

// Warm opens the handle ahead of the first request. Failure is not fatal.
func (n *NativeProvider) Warm(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev != nil {
		return nil
	}
	return n.open(ctx)
}

// Capture implements Provider.
func (n *NativeProvider) Capture(ctx context.Context, path string) error {
	if n.breaker == nil {
		return n.capture(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.capture(ctx, path)
	})
	return err
}

func (n *NativeProvider) capture(ctx context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, n.opts.Deadline)
	defer cancel()

	var errs []error
	for i := 1; i <= n.opts.Attempts; i++ {
		log.Printf("camera: native try %d/%d", i, n.opts.Attempts)
		err := n.tryCapture(ctx, path)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("try %d: %w", i, err))
		log.Printf("camera: native capture error: %v", err)
		if ctx.Err() != nil {
			break
		}
		n.hardReset(ctx)
	}
	return errors.Join(errs...)
}

func (n *NativeProvider) tryCapture(ctx context.Context, path string) error {
	if n.dev == nil {
		if err := n.open(ctx); err != nil {
			return err
		}
	}
	frame, err := n.dev.Frame(ctx)
	if err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return errors.New("capture did not create file")
	}
	return nil
}

// open starts a new device. Caller holds mu.
func (n *NativeProvider) open(ctx context.Context) error {
	dev := n.newDevice()
	if err := dev.Start(ctx); err != nil {
		if cerr := dev.Close(); cerr != nil {
			log.Printf("camera: close after failed start: %v", cerr)
		}
		n.setState(StateFailed)
		return fmt.Errorf("start camera: %w", err)
	}
	n.dev = dev
	n.setState(StateReady)
	log.Printf("camera: native handle ready")
	return n.settle(ctx)
}

// hardReset closes the handle, ignoring errors, and opens a fresh one.
// Caller holds mu.
func (n *NativeProvider) hardReset(ctx context.Context) {
	log.Printf("camera: hard reset")
	if n.dev != nil {
		if err := n.dev.Close(); err != nil {
			log.Printf("camera: close during reset: %v", err)
		}
		n.dev = nil
	}
	n.setState(StateUninitialized)

	n.settle(ctx)
	err := n.open(ctx)
	n.hmu.Lock()
	n.lastReset = ResetResult{At: n.now(), OK: err == nil, Err: err}
	n.hmu.Unlock()
	if err != nil {
		log.Printf("camera: reinit failed: %v", err)
	}
	if n.opts.OnReset != nil {
		n.opts.OnReset(err == nil)
	}
}

func (n *NativeProvider) settle(ctx context.Context) error {
	if n.opts.Settle <= 0 {
		return nil
	}
	t := time.NewTimer(n.opts.Settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stream calls fn with each new frame until ctx is done or fn or the device
// returns an error. The handle lock is held only while waiting for a frame.
func (n *NativeProvider) Stream(ctx context.Context, fn func(frame []byte) error) error {
	for {
		frame, err := n.frame(ctx)
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}

func (n *NativeProvider) frame(ctx context.Context) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.Deadline)
	defer cancel()
	if n.dev == nil {
		if err := n.open(ctx); err != nil {
			return nil, err
		}
	}
	frame, err := n.dev.Frame(ctx)
	if err != nil {
		if cerr := n.dev.Close(); cerr != nil {
			log.Printf("camera: close after stream error: %v", cerr)
		}
		n.dev = nil
		n.setState(StateFailed)
		return nil, fmt.Errorf("frame: %w", err)
	}
	return frame, nil
}

// NativeHealth describes the handle without touching the device.
type NativeHealth struct {
	State       State
	Initialized bool
	Breaker     string
	LastReset   ResetResult
}

func (n *NativeProvider) setState(s State) {
	n.hmu.Lock()
	n.state = s
	n.hmu.Unlock()
}

// Health returns the handle state without waiting on an in-flight capture.
func (n *NativeProvider) Health() NativeHealth {
	var h NativeHealth
	// Read before hmu: the breaker calls release, which takes hmu, under its own lock.
	if n.breaker != nil {
		h.Breaker = n.breaker.State().String()
	}
	n.hmu.Lock()
	defer n.hmu.Unlock()
	h.State = n.state
	h.Initialized = n.state == StateReady
	h.LastReset = n.lastReset
	return h
}

// release closes the handle so the still tool can claim the sensor while
// the breaker is open.
func (n *NativeProvider) release() {
	if err := n.Close(); err != nil {
		log.Printf("camera: close on open breaker: %v", err)
	}
}

// Close releases the handle.
func (n *NativeProvider) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return nil
	}
	err := n.dev.Close()
	n.dev = nil
	n.setState(StateUninitialized)
	return err
}
