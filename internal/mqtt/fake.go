package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/plant-controller/internal/logic"
	"github.com/sweeney/plant-controller/internal/sensor"
)

// SensorReading is a sensor publish recorded by FakePublisher.
type SensorReading struct {
	At       time.Time
	Snapshot sensor.Snapshot
}

// FakePublisher records published events for test assertions.
// It is safe for use from concurrent HTTP handlers.
type FakePublisher struct {
	mu sync.Mutex

	// WaterEvents contains all watering events that were published.
	WaterEvents []WaterEvent

	// SensorReadings contains all sensor readings that were published.
	SensorReadings []SensorReading

	// Events contains all touch and soil transitions that were published.
	Events []logic.Event

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains every JSON payload in publish order.
	Payloads [][]byte

	// PublishError, if set, is returned by PublishWater, PublishSensors and PublishEvent.
	PublishError error

	// PublishSystemError, if set, is returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishWater records the watering event.
func (f *FakePublisher) PublishWater(event WaterEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatWaterPayload(event)
	if err != nil {
		return err
	}
	f.WaterEvents = append(f.WaterEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSensors records the sensor reading.
func (f *FakePublisher) PublishSensors(at time.Time, snap sensor.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSensorPayload(at, snap)
	if err != nil {
		return err
	}
	f.SensorReadings = append(f.SensorReadings, SensorReading{At: at, Snapshot: snap})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishEvent records the transition.
func (f *FakePublisher) PublishEvent(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatEventPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Waters returns a copy of the recorded watering events.
func (f *FakePublisher) Waters() []WaterEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WaterEvent(nil), f.WaterEvents...)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WaterEvents = nil
	f.SensorReadings = nil
	f.Events = nil
	f.SystemEvents = nil
	f.Payloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
