package status

import (
	"encoding/json"
	"math"
	"time"
)

// LastWaterLayout is the local-time format used for last watering times.
const LastWaterLayout = "2006-01-02 15:04:05"

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Sensors       *SensorsJSON `json:"sensors,omitempty"`
	Watering      WateringJSON `json:"watering"`
	Pump          PumpJSON     `json:"pump"`
	Camera        CameraJSON   `json:"camera"`
	Events        EventsJSON   `json:"events"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SensorsJSON is the last sensor reading.
type SensorsJSON struct {
	Timestamp   string   `json:"timestamp"`
	Soil        *float64 `json:"soil"`
	Light       float64  `json:"light"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Touch       bool     `json:"touch"`
}

// WateringJSON is the quota state.
type WateringJSON struct {
	DailySeconds  float64 `json:"daily_sec"`
	DailyLimitSec float64 `json:"daily_limit_sec"`
	CooldownSec   float64 `json:"cooldown_sec"`
	LastWaterAt   *string `json:"last_water_at"`
	Count         int     `json:"count"`
}

// PumpJSON is the pump health.
type PumpJSON struct {
	Mock         bool   `json:"mock"`
	Pin          int    `json:"pin"`
	Ready        bool   `json:"ready"`
	InitMessage  string `json:"init_message,omitempty"`
	LastRelease  string `json:"last_release,omitempty"`
	ReleaseError string `json:"release_error,omitempty"`
}

// CameraJSON is the camera health.
type CameraJSON struct {
	Mode        string   `json:"mode"`
	Providers   []string `json:"providers"`
	Initialized bool     `json:"initialized"`
	Breaker     string   `json:"breaker,omitempty"`
	LastSource  string   `json:"last_source,omitempty"`
	LastCapture string   `json:"last_capture,omitempty"`
}

// EventsJSON counts touch and soil transitions since startup.
type EventsJSON struct {
	TouchOn  int `json:"touch_on"`
	TouchOff int `json:"touch_off"`
	SoilDry  int `json:"soil_dry"`
	SoilWet  int `json:"soil_wet"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	MockSensors bool   `json:"mock_sensors"`
	APIKeySet   bool   `json:"api_key_set"`
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FormatLastWater formats t in local time, or returns nil if t is zero.
func FormatLastWater(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Local().Format(LastWaterLayout)
	return &s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Watering: WateringJSON{
			DailySeconds:  Round1(snap.Watering.DailySeconds),
			DailyLimitSec: snap.Config.DailyLimitSec,
			CooldownSec:   snap.Config.CooldownSec,
			LastWaterAt:   FormatLastWater(snap.Watering.LastWater),
			Count:         snap.Watering.Count,
		},
		Pump: PumpJSON{
			Mock:         snap.Config.PumpMock,
			Pin:          snap.Config.PumpPin,
			Ready:        snap.Pump.Ready,
			InitMessage:  snap.Pump.InitMessage,
			LastRelease:  snap.Pump.LastRelease,
			ReleaseError: snap.Pump.ReleaseError,
		},
		Camera: CameraJSON{
			Mode:        snap.Config.CameraMode,
			Providers:   snap.Camera.Providers,
			Initialized: snap.Camera.Initialized,
			Breaker:     snap.Camera.Breaker,
			LastSource:  snap.Camera.LastSource,
		},
		Events: EventsJSON{
			TouchOn:  snap.Events.TouchOn,
			TouchOff: snap.Events.TouchOff,
			SoilDry:  snap.Events.SoilDry,
			SoilWet:  snap.Events.SoilWet,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			MockSensors: snap.Config.MockSensors,
			APIKeySet:   snap.Config.APIKeySet,
		},
	}
	if inner.Camera.Providers == nil {
		inner.Camera.Providers = []string{}
	}
	if !snap.Camera.LastCapture.IsZero() {
		inner.Camera.LastCapture = snap.Camera.LastCapture.UTC().Format(time.RFC3339)
	}
	if snap.Sensors != nil {
		inner.Sensors = &SensorsJSON{
			Timestamp:   snap.SensorsAt.UTC().Format(time.RFC3339),
			Soil:        snap.Sensors.Soil,
			Light:       snap.Sensors.Light,
			Temperature: snap.Sensors.Temperature,
			Humidity:    snap.Sensors.Humidity,
			Touch:       snap.Sensors.Touch,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
