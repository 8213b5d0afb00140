package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/plant-controller/internal/logic"
	"github.com/sweeney/plant-controller/internal/sensor"
)

func ptr(v float64) *float64 { return &v }

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 60000, Broker: "tcp://localhost:1883", HTTPAddr: ":8000"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.HTTPAddr != ":8000" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8000")
	}
	if snap.Sensors != nil {
		t.Error("expected nil Sensors initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if !snap.Watering.LastWater.IsZero() {
		t.Error("expected zero LastWater initially")
	}
}

func TestSetSensorsCopies(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.SetSensors(at, sensor.Snapshot{Soil: ptr(42), Light: 800, Touch: true})

	snap := tr.Snapshot()
	if snap.Sensors == nil || *snap.Sensors.Soil != 42 || snap.Sensors.Light != 800 || !snap.Sensors.Touch {
		t.Fatalf("Sensors: got %+v", snap.Sensors)
	}
	if !snap.SensorsAt.Equal(at) {
		t.Errorf("SensorsAt: got %v, want %v", snap.SensorsAt, at)
	}

	snap.Sensors.Light = 1
	if tr.Snapshot().Sensors.Light != 800 {
		t.Error("snapshot mutation leaked into tracker")
	}
}

func TestRecordWater(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)

	tr.RecordWater(at, 4)
	tr.RecordWater(at.Add(time.Minute), 6)

	w := tr.Snapshot().Watering
	if w.Count != 2 {
		t.Errorf("Count: got %d, want 2", w.Count)
	}
	if w.DailySeconds != 6 {
		t.Errorf("DailySeconds: got %v, want 6", w.DailySeconds)
	}
	if !w.LastWater.Equal(at.Add(time.Minute)) {
		t.Errorf("LastWater: got %v", w.LastWater)
	}

	tr.SetUsage(0, w.LastWater)
	if w := tr.Snapshot().Watering; w.DailySeconds != 0 || w.Count != 2 {
		t.Errorf("after SetUsage: got %+v", w)
	}
}

func TestSetCameraKeepsLastCapture(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tr.RecordCapture(at, "command")
	tr.SetCamera(Camera{Providers: []string{"native", "command"}, Breaker: "closed"})

	c := tr.Snapshot().Camera
	if c.LastSource != "command" || !c.LastCapture.Equal(at) {
		t.Errorf("last capture lost: got %+v", c)
	}
	if len(c.Providers) != 2 || c.Breaker != "closed" {
		t.Errorf("camera: got %+v", c)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetEvents(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetEvents(logic.EventCounts{TouchOn: 2, TouchOff: 1, SoilDry: 1})

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := EventsJSON{TouchOn: 2, TouchOff: 1, SoilDry: 1}
	if sj.Status.Events != want {
		t.Errorf("Events: got %+v, want %+v", sj.Status.Events, want)
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil || snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network: got %+v", snap.Network)
	}
}

func TestUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{})
	tr.now = func() time.Time { return start.Add(90 * time.Second) }

	if got := tr.Snapshot().Uptime(); got != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			tr.SetSensors(time.Now(), sensor.Snapshot{Light: float64(i)})
		}(i)
		go func() {
			defer wg.Done()
			tr.RecordWater(time.Now(), 1)
		}()
		go func() {
			defer wg.Done()
			_ = FormatJSON(tr.Snapshot())
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Watering.Count; got != 50 {
		t.Errorf("Count: got %d, want 50", got)
	}
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{2.04, 2},
		{2.06, 2.1},
		{29.96, 30},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		if got := Round1(tt.in); got != tt.want {
			t.Errorf("Round1(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatLastWater(t *testing.T) {
	if FormatLastWater(time.Time{}) != nil {
		t.Error("zero time should format as nil")
	}
	at := time.Date(2026, 3, 14, 7, 5, 9, 0, time.Local)
	got := FormatLastWater(at)
	if got == nil || *got != "2026-03-14 07:05:09" {
		t.Errorf("FormatLastWater: got %v, want 2026-03-14 07:05:09", got)
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	return Snapshot{
		StartTime: start,
		Now:       start.Add(2 * time.Hour),
		Sensors: &sensor.Snapshot{
			Soil:        ptr(100),
			Light:       1234.5,
			Temperature: ptr(-3.2),
			Humidity:    nil,
			Touch:       false,
		},
		SensorsAt: start.Add(time.Hour),
		Watering: Watering{
			DailySeconds: 4.04,
			Count:        2,
		},
		Pump:          Pump{Ready: true, InitMessage: "mock"},
		Camera:        Camera{Providers: []string{"command"}},
		MQTTConnected: true,
		Config: Config{
			PollMs:        60000,
			HeartbeatMs:   900000,
			Broker:        "tcp://broker:1883",
			HTTPAddr:      ":8000",
			PumpMock:      true,
			PumpPin:       17,
			DailyLimitSec: 30,
			CooldownSec:   60,
			CameraMode:    "auto",
		},
	}
}

func TestFormatJSON(t *testing.T) {
	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(testSnapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status

	if s.Event != "" || s.Reason != "" {
		t.Errorf("web status should omit event/reason: got %q/%q", s.Event, s.Reason)
	}
	if s.UptimeSeconds != 7200 {
		t.Errorf("UptimeSeconds: got %d, want 7200", s.UptimeSeconds)
	}
	if s.Timestamp != "2026-05-01T08:00:00Z" {
		t.Errorf("Timestamp: got %q", s.Timestamp)
	}
	if s.Sensors == nil {
		t.Fatal("expected sensors")
	}
	if s.Sensors.Humidity != nil {
		t.Errorf("Humidity: got %v, want null", *s.Sensors.Humidity)
	}
	if s.Sensors.Temperature == nil || *s.Sensors.Temperature != -3.2 {
		t.Errorf("Temperature: got %v, want -3.2", s.Sensors.Temperature)
	}
	if s.Watering.DailySeconds != 4 {
		t.Errorf("DailySeconds: got %v, want 4", s.Watering.DailySeconds)
	}
	if s.Watering.LastWaterAt != nil {
		t.Errorf("LastWaterAt: got %q, want null", *s.Watering.LastWaterAt)
	}
	if s.Watering.DailyLimitSec != 30 || s.Watering.CooldownSec != 60 {
		t.Errorf("limits: got %v/%v", s.Watering.DailyLimitSec, s.Watering.CooldownSec)
	}
	if !s.Pump.Mock || s.Pump.Pin != 17 {
		t.Errorf("Pump: got %+v", s.Pump)
	}
	if s.Network != nil {
		t.Error("Network should be omitted when nil")
	}
}

func TestFormatJSONEmptyProviders(t *testing.T) {
	snap := testSnapshot()
	snap.Camera.Providers = nil
	snap.Sensors = nil

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["status"]["sensors"]; ok {
		t.Error("sensors should be omitted before the first reading")
	}
	cam := raw["status"]["camera"].(map[string]interface{})
	if providers, ok := cam["providers"].([]interface{}); !ok || len(providers) != 0 {
		t.Errorf("providers: got %v, want []", cam["providers"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "10.0.0.5", Status: "connected", SSID: "garden"}

	var sj StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.Network == nil || sj.Status.Network.SSID != "garden" {
		t.Errorf("Network: got %+v", sj.Status.Network)
	}
}

func TestFormatStatusEventOmitsReason(t *testing.T) {
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatStatusEvent(testSnapshot(), "STARTUP", ""), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["status"]["reason"]; ok {
		t.Error("STARTUP should not have reason field")
	}
}
