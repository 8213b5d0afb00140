package sensor

import (
	"log"

	"github.com/sweeney/plant-controller/internal/gpio"
)

// HardwareConfig selects pins and polarities for the attached sensors.
type HardwareConfig struct {
	TouchPin        int
	TouchActiveHigh bool // true: a raw 1 means touched
	SoilPin         int
	SoilWetHigh     bool // true: DO=1 means wet
	DHTPin          int
	I2CBus          string
}

// OpenHardware opens every sensor it can. A sensor that cannot be opened is
// logged and left out, so its field stays empty in every snapshot.
func OpenHardware(cfg HardwareConfig, onError func(sensor string, err error)) *HardwareReader {
	r := &HardwareReader{OnError: onError}

	if in, err := gpio.NewRealInput(cfg.TouchPin, cfg.TouchActiveHigh); err != nil {
		log.Printf("sensor: touch disabled: %v", err)
	} else {
		r.Touch = in
		r.closers = append(r.closers, in.Close)
	}

	if in, err := gpio.NewRealInput(cfg.SoilPin, cfg.SoilWetHigh); err != nil {
		log.Printf("sensor: soil disabled: %v", err)
	} else {
		r.Soil = in
		r.closers = append(r.closers, in.Close)
	}

	if bus, err := OpenI2C(cfg.I2CBus); err != nil {
		log.Printf("sensor: BH1750 disabled: %v", err)
	} else {
		r.Light = NewBH1750(bus)
		r.closers = append(r.closers, bus.Close)
	}

	r.Climate = NewDHT22(&LineCapturer{Pin: cfg.DHTPin})

	log.Printf("sensor: hardware touch=%d soil=%d dht=%d i2c=%q", cfg.TouchPin, cfg.SoilPin, cfg.DHTPin, cfg.I2CBus)
	return r
}
