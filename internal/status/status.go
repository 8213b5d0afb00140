// Package status provides a thread-safe status tracker for the plant-controller daemon.
// It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/plant-controller/internal/logic"
	"github.com/sweeney/plant-controller/internal/sensor"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	MockSensors   bool
	PumpMock      bool
	PumpPin       int
	DailyLimitSec float64
	CooldownSec   float64
	CameraMode    string
	APIKeySet     bool
}

// Watering is the quota state as last seen by the tracker.
type Watering struct {
	DailySeconds float64
	LastWater    time.Time // zero if never watered
	Count        int       // accepted pulses since start
}

// Pump is the pump health as last seen by the tracker.
type Pump struct {
	Ready        bool
	InitMessage  string
	LastRelease  string
	ReleaseError string
}

// Camera is the camera health as last seen by the tracker.
type Camera struct {
	Providers   []string
	Initialized bool
	Breaker     string
	LastSource  string
	LastCapture time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	Sensors       *sensor.Snapshot
	SensorsAt     time.Time
	Watering      Watering
	Pump          Pump
	Camera        Camera
	Events        logic.EventCounts
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetSensors stores the latest sensor reading.
func (t *Tracker) SetSensors(at time.Time, s sensor.Snapshot) {
	t.mu.Lock()
	t.snap.Sensors = &s
	t.snap.SensorsAt = at
	t.mu.Unlock()
}

// SetUsage stores the quota totals after day rollover.
func (t *Tracker) SetUsage(dailySeconds float64, lastWater time.Time) {
	t.mu.Lock()
	t.snap.Watering.DailySeconds = dailySeconds
	t.snap.Watering.LastWater = lastWater
	t.mu.Unlock()
}

// RecordWater stores an accepted pulse.
func (t *Tracker) RecordWater(at time.Time, dailySeconds float64) {
	t.mu.Lock()
	t.snap.Watering.DailySeconds = dailySeconds
	t.snap.Watering.LastWater = at
	t.snap.Watering.Count++
	t.mu.Unlock()
}

// SetPump stores pump health.
func (t *Tracker) SetPump(p Pump) {
	t.mu.Lock()
	t.snap.Pump = p
	t.mu.Unlock()
}

// SetCamera stores camera health, keeping the last capture fields.
func (t *Tracker) SetCamera(c Camera) {
	t.mu.Lock()
	c.LastSource = t.snap.Camera.LastSource
	c.LastCapture = t.snap.Camera.LastCapture
	t.snap.Camera = c
	t.mu.Unlock()
}

// RecordCapture stores the source of the latest photo.
func (t *Tracker) RecordCapture(at time.Time, source string) {
	t.mu.Lock()
	t.snap.Camera.LastSource = source
	t.snap.Camera.LastCapture = at
	t.mu.Unlock()
}

// SetEvents stores the transition counts since startup.
func (t *Tracker) SetEvents(c logic.EventCounts) {
	t.mu.Lock()
	t.snap.Events = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.Sensors != nil {
		cp := *s.Sensors
		s.Sensors = &cp
	}
	s.Camera.Providers = append([]string(nil), s.Camera.Providers...)
	s.Now = t.now()
	return s
}
