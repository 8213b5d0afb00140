//go:build linux

package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/plant-controller/internal/gpio"
)

const (
	dhtStartLow    = 2 * time.Millisecond
	dhtTransferMax = 10 * time.Millisecond
)

// LineCapturer drives the DHT22 start signal and timestamps the reply edges
// in the kernel, which is precise enough to decode the bit stream from user space.
type LineCapturer struct {
	Pin int
}

// Capture performs one transfer on the line.
func (c *LineCapturer) Capture() ([]time.Duration, error) {
	var (
		mu    sync.Mutex
		edges []time.Duration
	)
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventFallingEdge {
			return
		}
		mu.Lock()
		edges = append(edges, evt.Timestamp)
		mu.Unlock()
	}

	line, err := gpiocdev.RequestLine(gpio.ChipName, c.Pin,
		gpiocdev.AsOutput(gpio.High),
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("request dht pin %d: %w", c.Pin, err)
	}
	defer line.Close()

	// Start signal: hold low, then release and listen.
	if err := line.SetValue(gpio.Low); err != nil {
		return nil, fmt.Errorf("dht start: %w", err)
	}
	time.Sleep(dhtStartLow)
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithFallingEdge); err != nil {
		return nil, fmt.Errorf("dht listen: %w", err)
	}
	time.Sleep(dhtTransferMax)

	mu.Lock()
	defer mu.Unlock()
	return append([]time.Duration(nil), edges...), nil
}
