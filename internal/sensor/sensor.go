// Package sensor reads the plant sensors: touch, soil moisture, light and
// air temperature/humidity.
//
// Every field is read independently. A failing sensor degrades only its own
// field (nil, zero or false) and never prevents the others from being read.
package sensor

import (
	"log"
	"sync"
)

// Snapshot is one reading of all sensors. Nil pointers mean "no reading".
type Snapshot struct {
	Soil        *float64 // percent; digital probes report 0 (dry) or 100 (wet)
	Light       float64  // lux, 0 when unavailable
	Temperature *float64 // °C
	Humidity    *float64 // % relative humidity
	Touch       bool
}

// Reader produces snapshots.
type Reader interface {
	ReadAll() Snapshot
}

// Inputs is a reading of the digital inputs only.
type Inputs struct {
	Touch bool
	Soil  *float64
}

// InputReader reads the digital inputs without touching the slow buses, so
// it can be sampled often.
type InputReader interface {
	ReadInputs() Inputs
}

// LightMeter measures illuminance.
type LightMeter interface {
	Lux() (float64, error)
}

// Climate measures air humidity and temperature.
type Climate interface {
	Read() (humidity, temperature float64, err error)
}

// DigitalInput is a polarity-corrected digital line.
type DigitalInput interface {
	Read() (bool, error)
}

// Sensor names used for logging and metrics.
const (
	NameTouch   = "touch"
	NameSoil    = "soil"
	NameLight   = "light"
	NameClimate = "climate"
)

// Soil readings reported for digital probes.
const (
	SoilWetPct = 100.0
	SoilDryPct = 0.0
)

// HardwareReader reads the attached sensors. Nil sensors are skipped and
// their fields left at the zero value.
type HardwareReader struct {
	Touch   DigitalInput
	Soil    DigitalInput
	Light   LightMeter
	Climate Climate

	// OnError, if set, is called for every failed read.
	OnError func(sensor string, err error)

	closers []func() error
	mu      sync.Mutex
}

// ReadAll reads every sensor. Reads are serialized so that two concurrent
// status requests do not interleave I2C or single-wire traffic.
func (r *HardwareReader) ReadAll() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	in := r.readInputs()
	s := Snapshot{Touch: in.Touch, Soil: in.Soil}

	if r.Light != nil {
		lux, err := r.Light.Lux()
		if err != nil {
			r.fail(NameLight, err)
			log.Printf("sensor: hint: check the BH1750 with 'i2cdetect -y 1' (expect 0x23 or 0x5c), I2C enabled, 3.3V supply")
		} else {
			s.Light = lux
		}
	}

	if r.Climate != nil {
		h, t, err := r.Climate.Read()
		if err != nil {
			r.fail(NameClimate, err)
		} else {
			s.Humidity = &h
			s.Temperature = &t
		}
	}

	return s
}

// ReadInputs reads only the touch and soil lines.
func (r *HardwareReader) ReadInputs() Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readInputs()
}

// readInputs reads the digital lines. Caller holds mu.
func (r *HardwareReader) readInputs() Inputs {
	var in Inputs

	if r.Touch != nil {
		touched, err := r.Touch.Read()
		if err != nil {
			r.fail(NameTouch, err)
		} else {
			in.Touch = touched
		}
	}

	if r.Soil != nil {
		wet, err := r.Soil.Read()
		if err != nil {
			r.fail(NameSoil, err)
		} else {
			pct := SoilDryPct
			if wet {
				pct = SoilWetPct
			}
			in.Soil = &pct
		}
	}
	return in
}

func (r *HardwareReader) fail(name string, err error) {
	log.Printf("sensor: %s read error: %v", name, err)
	if r.OnError != nil {
		r.OnError(name, err)
	}
}

// Close releases every underlying device.
func (r *HardwareReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
