package sensor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// BH1750 addresses: ADDR pin to GND, ADDR pin to VCC.
const (
	BH1750AddrLow  uint16 = 0x23
	BH1750AddrHigh uint16 = 0x5C
)

const (
	bh1750PowerOn  = 0x01
	bh1750ContHRes = 0x10

	bh1750Samples      = 3
	bh1750PowerOnDelay = 10 * time.Millisecond
	bh1750MeasureDelay = 220 * time.Millisecond
	bh1750CountsPerLux = 1.2
)

// Bus is the part of an I2C bus the light meter uses.
// periph.io's i2c.Bus satisfies it.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// BH1750 reads an ambient light sensor, trying each candidate address in turn.
type BH1750 struct {
	mu    sync.Mutex
	bus   Bus
	addrs []uint16
	sleep func(time.Duration)
}

// NewBH1750 creates a meter on bus. With no addrs, both standard addresses are tried.
func NewBH1750(bus Bus, addrs ...uint16) *BH1750 {
	if len(addrs) == 0 {
		addrs = []uint16{BH1750AddrLow, BH1750AddrHigh}
	}
	return &BH1750{bus: bus, addrs: addrs, sleep: time.Sleep}
}

// Lux takes three samples at the first responding address, discards zero
// samples and returns the average converted to lux.
func (m *BH1750) Lux() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, addr := range m.addrs {
		lux, err := m.read(addr)
		if err == nil {
			return lux, nil
		}
		errs = append(errs, err)
	}
	return 0, fmt.Errorf("bh1750: %w", errors.Join(errs...))
}

func (m *BH1750) read(addr uint16) (float64, error) {
	// Some modules need an explicit power on after reset.
	if err := m.bus.Tx(addr, []byte{bh1750PowerOn}, nil); err != nil {
		return 0, fmt.Errorf("addr=0x%02X power on: %w", addr, err)
	}
	m.sleep(bh1750PowerOnDelay)
	if err := m.bus.Tx(addr, []byte{bh1750ContHRes}, nil); err != nil {
		return 0, fmt.Errorf("addr=0x%02X set mode: %w", addr, err)
	}

	readings := make([]int, 0, bh1750Samples)
	for i := 0; i < bh1750Samples; i++ {
		m.sleep(bh1750MeasureDelay)
		buf := make([]byte, 2)
		if err := m.bus.Tx(addr, nil, buf); err != nil {
			return 0, fmt.Errorf("addr=0x%02X read: %w", addr, err)
		}
		readings = append(readings, int(buf[0])<<8|int(buf[1]))
	}

	sum, n := 0, 0
	for _, r := range readings {
		if r > 0 {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("addr=0x%02X returned only zeros: %v", addr, readings)
	}
	return float64(sum) / float64(n) / bh1750CountsPerLux, nil
}

// OpenI2C initializes the periph host drivers and opens the named bus
// ("" selects the first available bus).
func OpenI2C(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}
