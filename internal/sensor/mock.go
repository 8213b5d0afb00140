package sensor

import (
	"math/rand/v2"
	"sync"
	"time"
)

// MockReader returns plausible random values for development without hardware.
type MockReader struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockReader creates a MockReader. A nil rng seeds one from the clock.
func NewMockReader(rng *rand.Rand) *MockReader {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &MockReader{rng: rng}
}

// ReadAll returns random values in fixed ranges: soil 35–50 %, light
// 500–5500 lux, temperature 24–28 °C, humidity 50–60 %, touch ~10 % of reads.
func (m *MockReader) ReadAll() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	soil := 35 + 15*m.rng.Float64()
	temp := 24 + 4*m.rng.Float64()
	humi := 50 + 10*m.rng.Float64()
	return Snapshot{
		Soil:        &soil,
		Light:       500 + 5000*m.rng.Float64(),
		Temperature: &temp,
		Humidity:    &humi,
		Touch:       m.rng.Float64() < 0.1,
	}
}

// ReadInputs returns a random touch and soil value from the same ranges as ReadAll.
func (m *MockReader) ReadInputs() Inputs {
	m.mu.Lock()
	defer m.mu.Unlock()

	soil := 35 + 15*m.rng.Float64()
	return Inputs{Touch: m.rng.Float64() < 0.1, Soil: &soil}
}
