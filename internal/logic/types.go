// Package logic contains pure transition detection for the plant's digital
// inputs: the touch pad and the soil dry/wet state.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// DryBelowPct is the soil reading under which the plant counts as dry.
// Digital probes report 0 or 100, so any threshold in between works for them.
const DryBelowPct = 30.0

// State represents the logical state of an input channel.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// EventType represents a state transition event.
type EventType string

const (
	EventTouchOn  EventType = "TOUCH_ON"
	EventTouchOff EventType = "TOUCH_OFF"
	EventSoilDry  EventType = "SOIL_DRY"
	EventSoilWet  EventType = "SOIL_WET"
)

// Event represents a state transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Touch     State
	Dry       State
}

// ChannelState tracks debounce state for a single channel.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input is one sample of the digital inputs.
type Input struct {
	Touch bool
	Soil  *float64 // nil when the soil probe could not be read
	Time  time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	TouchOn  int
	TouchOff int
	SoilDry  int
	SoilWet  int
}
