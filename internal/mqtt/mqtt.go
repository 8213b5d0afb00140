// Package mqtt publishes watering, sensor and lifecycle events to MQTT.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/plant-controller/internal/logic"
	"github.com/sweeney/plant-controller/internal/sensor"
)

// TopicWater is the MQTT topic for accepted watering pulses.
const TopicWater = "garden/plant/water/events"

// TopicSensors is the MQTT topic for periodic sensor readings.
const TopicSensors = "garden/plant/sensors"

// TopicEvents is the MQTT topic for debounced touch and soil transitions.
const TopicEvents = "garden/plant/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "garden/plant/system"

// Publisher publishes events to MQTT.
// Errors are reported but never crash the process.
type Publisher interface {
	PublishWater(event WaterEvent) error
	PublishSensors(at time.Time, snap sensor.Snapshot) error
	PublishEvent(event logic.Event) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// WaterEvent is an accepted watering pulse.
type WaterEvent struct {
	Timestamp    time.Time
	Seconds      float64
	DailySeconds float64
	Mock         bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
	Dropped    int    // Messages lost while disconnected (RECONNECTED only)
}

// WaterPayload is the MQTT message for a watering pulse.
type WaterPayload struct {
	Water WaterPayloadInner `json:"water"`
}

// WaterPayloadInner contains the pulse details.
type WaterPayloadInner struct {
	Timestamp    string  `json:"timestamp"`
	Seconds      float64 `json:"seconds"`
	DailySeconds float64 `json:"daily_sec"`
	Mock         bool    `json:"mock"`
}

// FormatWaterPayload creates the JSON payload for a watering pulse.
func FormatWaterPayload(event WaterEvent) ([]byte, error) {
	return json.Marshal(WaterPayload{
		Water: WaterPayloadInner{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Seconds:      event.Seconds,
			DailySeconds: event.DailySeconds,
			Mock:         event.Mock,
		},
	})
}

// SensorPayload is the MQTT message for a sensor reading.
type SensorPayload struct {
	Sensors SensorPayloadInner `json:"sensors"`
}

// SensorPayloadInner contains the reading. Nil values mean the sensor failed.
type SensorPayloadInner struct {
	Timestamp   string   `json:"timestamp"`
	Soil        *float64 `json:"soil"`
	Light       float64  `json:"light"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Touch       bool     `json:"touch"`
}

// FormatSensorPayload creates the JSON payload for a sensor reading.
func FormatSensorPayload(at time.Time, snap sensor.Snapshot) ([]byte, error) {
	return json.Marshal(SensorPayload{
		Sensors: SensorPayloadInner{
			Timestamp:   at.UTC().Format(time.RFC3339),
			Soil:        snap.Soil,
			Light:       snap.Light,
			Temperature: snap.Temperature,
			Humidity:    snap.Humidity,
			Touch:       snap.Touch,
		},
	})
}

// EventPayload is the MQTT message for a touch or soil transition.
type EventPayload struct {
	Plant EventPayloadInner `json:"plant"`
}

// EventPayloadInner contains the transition and the resulting input states.
type EventPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Touch     string `json:"touch"`
	SoilDry   string `json:"soil_dry,omitempty"`
}

// FormatEventPayload creates the JSON payload for a transition.
func FormatEventPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Plant: EventPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Touch:     string(event.Touch),
			SoilDry:   string(event.Dry),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Dropped   int    `json:"dropped,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Dropped:   event.Dropped,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher used when no broker is configured.
type Discard struct{}

func (Discard) PublishWater(WaterEvent) error                   { return nil }
func (Discard) PublishSensors(time.Time, sensor.Snapshot) error { return nil }
func (Discard) PublishEvent(logic.Event) error                  { return nil }
func (Discard) PublishSystem(SystemEvent) error                 { return nil }
func (Discard) Close() error                                    { return nil }
func (Discard) IsConnected() bool                               { return false }
