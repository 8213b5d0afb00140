package sensor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DHT22 bit timing: each bit starts with a ~50µs low, followed by ~26µs high
// for a 0 or ~70µs high for a 1. The period between falling edges is thus
// ~76µs or ~120µs.
const (
	dhtBits         = 40
	dhtBitThreshold = 100 * time.Microsecond
	dhtMinPeriod    = 40 * time.Microsecond
	dhtMaxPeriod    = 200 * time.Microsecond

	dhtAttempts   = 5
	dhtRetryDelay = time.Second
)

var (
	errDHTShortFrame = errors.New("dht22: too few edges")
	errDHTChecksum   = errors.New("dht22: checksum mismatch")
)

// EdgeCapturer triggers one DHT22 transfer and returns the timestamps of the
// falling edges the sensor produced.
type EdgeCapturer interface {
	Capture() ([]time.Duration, error)
}

// DHT22 reads an AM2302/DHT22 on a single GPIO line.
type DHT22 struct {
	mu      sync.Mutex
	capture EdgeCapturer
	retry   func() backoff.BackOff
}

// NewDHT22 creates a sensor that retries transient errors up to five times,
// one second apart.
func NewDHT22(c EdgeCapturer) *DHT22 {
	return &DHT22{
		capture: c,
		retry: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(dhtRetryDelay), dhtAttempts-1)
		},
	}
}

// Read returns humidity (%) and temperature (°C), rounded to one decimal.
func (d *DHT22) Read() (humidity, temperature float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempts := 0
	err = backoff.Retry(func() error {
		attempts++
		edges, err := d.capture.Capture()
		if err != nil {
			return err
		}
		humidity, temperature, err = decodeDHT22(edges)
		return err
	}, d.retry())
	if err != nil {
		return 0, 0, fmt.Errorf("dht22 after %d attempts: %w", attempts, err)
	}
	return humidity, temperature, nil
}

// decodeDHT22 decodes the last 41 falling edges of a transfer into a
// reading. The 40 periods between them are the data bits, MSB first.
func decodeDHT22(falling []time.Duration) (humidity, temperature float64, err error) {
	if len(falling) < dhtBits+1 {
		return 0, 0, fmt.Errorf("%w: got %d, want %d", errDHTShortFrame, len(falling), dhtBits+1)
	}
	edges := falling[len(falling)-(dhtBits+1):]

	var data [5]byte
	for i := 0; i < dhtBits; i++ {
		period := edges[i+1] - edges[i]
		if period < dhtMinPeriod || period > dhtMaxPeriod {
			return 0, 0, fmt.Errorf("dht22: bit %d period %v out of range", i, period)
		}
		data[i/8] <<= 1
		if period > dhtBitThreshold {
			data[i/8] |= 1
		}
	}

	if sum := data[0] + data[1] + data[2] + data[3]; sum != data[4] {
		return 0, 0, fmt.Errorf("%w: %#x != %#x", errDHTChecksum, sum, data[4])
	}

	h := float64(uint16(data[0])<<8|uint16(data[1])) / 10
	t := float64(uint16(data[2]&0x7F)<<8|uint16(data[3])) / 10
	if data[2]&0x80 != 0 {
		t = -t
	}
	return round1(h), round1(t), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
