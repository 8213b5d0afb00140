package camera

import (
	"context"
	"fmt"
	"log"
	"os/exec"
)

// Mode selects which providers are used.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeNative  Mode = "native"
	ModeCommand Mode = "command"
	ModeOff     Mode = "off"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeNative, ModeCommand, ModeOff:
		return m, nil
	}
	return "", fmt.Errorf("unknown camera mode %q (want auto, native, command or off)", s)
}

var (
	streamTools = []string{"rpicam-vid", "libcamera-vid"}
	stillTools  = []string{"rpicam-still", "libcamera-still"}
)

// Options configure a Service.
type Options struct {
	Mode   Mode
	Width  int
	Height int
	Native NativeOptions

	// LookPath resolves tool names; defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// NewDevice overrides the native device factory.
	NewDevice DeviceFactory
	// Runner overrides how the still tool is executed.
	Runner Runner
}

// Service is the capture strategy chosen at startup.
type Service struct {
	chain     *Chain
	native    *NativeProvider
	command   *CommandProvider
	streamBin string
	stillBin  string
}

// NewService probes for camera tools and builds the provider chain.
func NewService(opts Options) *Service {
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1640, 1232
	}

	s := &Service{}
	var providers []Provider

	if opts.Mode == ModeAuto || opts.Mode == ModeNative {
		newDevice := opts.NewDevice
		if newDevice == nil {
			if tool := firstAvailable(lookPath, streamTools); tool != "" {
				s.streamBin = tool
				w, h := opts.Width, opts.Height
				newDevice = func() Device { return NewStreamDevice(tool, w, h) }
			}
		}
		if newDevice != nil {
			s.native = NewNativeProvider(newDevice, opts.Native)
			providers = append(providers, s.native)
		} else {
			log.Printf("camera: no video tool found (%v), native capture disabled", streamTools)
		}
	}

	if opts.Mode == ModeAuto || opts.Mode == ModeCommand {
		tool := firstAvailable(lookPath, stillTools)
		if tool == "" && opts.Runner != nil {
			tool = stillTools[0]
		}
		if tool != "" {
			s.stillBin = tool
			s.command = NewCommandProvider(tool)
			if opts.Runner != nil {
				s.command.run = opts.Runner
			}
			providers = append(providers, s.command)
		} else {
			log.Printf("camera: no still tool found (%v), command capture disabled", stillTools)
		}
	}

	s.chain = NewChain(providers...)
	log.Printf("camera: mode=%s providers=%v", opts.Mode, s.chain.Names())
	return s
}

func firstAvailable(lookPath func(string) (string, error), names []string) string {
	for _, name := range names {
		if _, err := lookPath(name); err == nil {
			return name
		}
	}
	return ""
}

// Capture runs the provider chain.
func (s *Service) Capture(ctx context.Context, path string) (string, error) {
	return s.chain.Capture(ctx, path)
}

// Native returns the native provider, or nil when it is not in use.
func (s *Service) Native() *NativeProvider { return s.native }

// Stream relays native frames to fn. It needs the native provider.
func (s *Service) Stream(ctx context.Context, fn func(frame []byte) error) error {
	if s.native == nil {
		return fmt.Errorf("%w: native camera not in use", ErrCaptureUnavailable)
	}
	return s.native.Stream(ctx, fn)
}

// Warm opens the native handle if there is one.
func (s *Service) Warm(ctx context.Context) {
	if s.native == nil {
		return
	}
	if err := s.native.Warm(ctx); err != nil {
		log.Printf("camera: warm-up failed (will retry on capture): %v", err)
	}
}

// Health summarizes providers without capturing.
type Health struct {
	Providers   []string
	NativeTool  string
	StillTool   string
	Native      *NativeHealth
	Initialized bool
}

// Health reports the configured providers and native handle state.
func (s *Service) Health() Health {
	h := Health{
		Providers:  s.chain.Names(),
		NativeTool: s.streamBin,
		StillTool:  s.stillBin,
	}
	if s.native != nil {
		nh := s.native.Health()
		h.Native = &nh
		h.Initialized = nh.Initialized
	}
	return h
}

// Close releases the native handle.
func (s *Service) Close() error {
	if s.native == nil {
		return nil
	}
	return s.native.Close()
}
