package sensor

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/sweeney/plant-controller/internal/gpio"
)

type fakeLight struct {
	lux   float64
	err   error
	calls int
}

func (f *fakeLight) Lux() (float64, error) {
	f.calls++
	return f.lux, f.err
}

type fakeClimate struct {
	h, t  float64
	err   error
	calls int
}

func (f *fakeClimate) Read() (float64, float64, error) {
	f.calls++
	return f.h, f.t, f.err
}

func TestMockReaderRanges(t *testing.T) {
	m := NewMockReader(rand.New(rand.NewPCG(1, 2)))

	touches := 0
	const n = 2000
	for i := 0; i < n; i++ {
		s := m.ReadAll()
		if s.Soil == nil || *s.Soil < 35 || *s.Soil > 50 {
			t.Fatalf("soil out of range: %v", s.Soil)
		}
		if s.Light < 500 || s.Light > 5500 {
			t.Fatalf("light out of range: %v", s.Light)
		}
		if s.Temperature == nil || *s.Temperature < 24 || *s.Temperature > 28 {
			t.Fatalf("temperature out of range: %v", s.Temperature)
		}
		if s.Humidity == nil || *s.Humidity < 50 || *s.Humidity > 60 {
			t.Fatalf("humidity out of range: %v", s.Humidity)
		}
		if s.Touch {
			touches++
		}
	}
	// ~10% touch probability; allow a wide margin.
	if touches < n/20 || touches > n/5 {
		t.Errorf("touch count: got %d of %d, want roughly 10%%", touches, n)
	}
}

func TestMockReaderNilRng(t *testing.T) {
	s := NewMockReader(nil).ReadAll()
	if s.Soil == nil {
		t.Error("expected a soil value")
	}
}

func TestHardwareReaderAllFields(t *testing.T) {
	light := &fakeLight{lux: 1234.5}
	climate := &fakeClimate{h: 55.1, t: 21.4}
	r := &HardwareReader{
		Touch:   gpio.NewFakeInput(true),
		Soil:    gpio.NewFakeInput(true),
		Light:   light,
		Climate: climate,
	}

	s := r.ReadAll()

	if !s.Touch {
		t.Error("expected Touch=true")
	}
	if s.Soil == nil || *s.Soil != SoilWetPct {
		t.Errorf("Soil: got %v, want %v", s.Soil, SoilWetPct)
	}
	if s.Light != 1234.5 {
		t.Errorf("Light: got %v", s.Light)
	}
	if s.Humidity == nil || *s.Humidity != 55.1 {
		t.Errorf("Humidity: got %v", s.Humidity)
	}
	if s.Temperature == nil || *s.Temperature != 21.4 {
		t.Errorf("Temperature: got %v", s.Temperature)
	}
}

func TestHardwareReaderDrySoil(t *testing.T) {
	r := &HardwareReader{Soil: gpio.NewFakeInput(false)}
	s := r.ReadAll()
	if s.Soil == nil || *s.Soil != SoilDryPct {
		t.Errorf("Soil: got %v, want %v", s.Soil, SoilDryPct)
	}
}

func TestHardwareReaderFailuresAreIndependent(t *testing.T) {
	touch := gpio.NewFakeInput(true)
	touch.ReadError = errors.New("touch gone")
	light := &fakeLight{err: errors.New("i2c nack")}
	climate := &fakeClimate{err: errors.New("dht timeout")}
	soil := gpio.NewFakeInput(true)

	var failed []string
	r := &HardwareReader{
		Touch:   touch,
		Soil:    soil,
		Light:   light,
		Climate: climate,
		OnError: func(name string, err error) { failed = append(failed, name) },
	}

	s := r.ReadAll()

	if s.Touch {
		t.Error("failed touch must read false")
	}
	if s.Light != 0 {
		t.Errorf("failed light must read 0, got %v", s.Light)
	}
	if s.Temperature != nil || s.Humidity != nil {
		t.Errorf("failed climate must be nil, got %v/%v", s.Temperature, s.Humidity)
	}
	if s.Soil == nil {
		t.Error("soil should still be read when others fail")
	}
	if light.calls != 1 || climate.calls != 1 || soil.Reads != 1 {
		t.Errorf("every sensor should be tried once: light=%d climate=%d soil=%d", light.calls, climate.calls, soil.Reads)
	}

	want := []string{NameTouch, NameLight, NameClimate}
	if len(failed) != len(want) {
		t.Fatalf("OnError: got %v, want %v", failed, want)
	}
	for i := range want {
		if failed[i] != want[i] {
			t.Errorf("OnError[%d]: got %q, want %q", i, failed[i], want[i])
		}
	}
}

func TestHardwareReaderNilSensors(t *testing.T) {
	s := (&HardwareReader{}).ReadAll()
	if s.Soil != nil || s.Temperature != nil || s.Humidity != nil || s.Light != 0 || s.Touch {
		t.Errorf("expected empty snapshot, got %+v", s)
	}
}

func TestHardwareReaderClose(t *testing.T) {
	closed := 0
	r := &HardwareReader{closers: []func() error{
		func() error { closed++; return nil },
		func() error { closed++; return errors.New("busy") },
	}}
	if err := r.Close(); err == nil {
		t.Error("expected first close error to be returned")
	}
	if closed != 2 {
		t.Errorf("closed: got %d, want 2", closed)
	}
}

func TestHardwareReaderReadInputsSkipsSlowBuses(t *testing.T) {
	light := &fakeLight{lux: 10}
	climate := &fakeClimate{h: 50, t: 20}
	r := &HardwareReader{
		Touch:   gpio.NewFakeInput(true),
		Soil:    gpio.NewFakeInput(false),
		Light:   light,
		Climate: climate,
	}

	in := r.ReadInputs()
	if !in.Touch {
		t.Error("expected Touch=true")
	}
	if in.Soil == nil || *in.Soil != SoilDryPct {
		t.Errorf("Soil: got %v, want %v", in.Soil, SoilDryPct)
	}
	if light.calls != 0 || climate.calls != 0 {
		t.Errorf("slow sensors read: light=%d climate=%d", light.calls, climate.calls)
	}
}

func TestMockReaderReadInputs(t *testing.T) {
	in := NewMockReader(rand.New(rand.NewPCG(3, 4))).ReadInputs()
	if in.Soil == nil || *in.Soil < 35 || *in.Soil > 50 {
		t.Errorf("soil out of range: %v", in.Soil)
	}
}
