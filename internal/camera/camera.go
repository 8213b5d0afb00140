// Package camera captures still photos through a chain of providers.
//
// Providers are chosen once at startup. The native provider keeps a single
// long-lived camera handle behind a mutex; the command provider shells out to
// a still-capture tool. When every provider fails, Capture returns an error
// wrapping ErrCaptureUnavailable and the caller substitutes a placeholder.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrCaptureUnavailable means no provider produced a photo.
var ErrCaptureUnavailable = errors.New("camera unavailable")

// Source names reported for a capture.
const (
	SourceNative      = "native"
	SourceCommand     = "command"
	SourcePlaceholder = "placeholder"
)

// Provider captures a JPEG to path.
type Provider interface {
	Name() string
	Capture(ctx context.Context, path string) error
}

// Chain tries providers in order.
type Chain struct {
	providers []Provider
}

// NewChain creates a chain of providers, tried first to last.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Capture writes a photo to path and returns the name of the provider that
// produced it.
func (c *Chain) Capture(ctx context.Context, path string) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("%w: no camera provider configured", ErrCaptureUnavailable)
	}
	var errs []error
	for _, p := range c.providers {
		err := p.Capture(ctx, path)
		if err == nil {
			log.Printf("camera: %s capture success", p.Name())
			return p.Name(), nil
		}
		log.Printf("camera: %s capture failed, falling back: %v", p.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return "", fmt.Errorf("%w: %w", ErrCaptureUnavailable, errors.Join(errs...))
}

// Names lists the configured providers in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}
