package logic

import "time"

// Detector tracks the touch and soil channels and detects debounced
// transitions. Each channel baselines on its own, so a missing soil probe
// never holds back touch events.
type Detector struct {
	debounceDuration time.Duration
	touch            ChannelState
	dry              ChannelState
	eventCounts      EventCounts
}

// NewDetector creates a new transition detector with the given debounce duration.
func NewDetector(debounceDuration time.Duration) *Detector {
	return &Detector{debounceDuration: debounceDuration}
}

// Process takes a new input sample and returns any events that should be emitted.
// A channel emits nothing until its baseline is established. A nil soil
// reading leaves the soil channel untouched.
func (d *Detector) Process(input Input) []Event {
	var transitions []EventType

	if t := d.processChannel(&d.touch, boolToState(input.Touch), input.Time); t != "" {
		transitions = append(transitions, t)
	}
	if input.Soil != nil {
		dry := boolToState(*input.Soil < DryBelowPct)
		if t := d.processChannel(&d.dry, dry, input.Time); t != "" {
			transitions = append(transitions, t)
		}
	}

	// Order: touch first, then soil if both change simultaneously
	var events []Event
	for _, t := range transitions {
		events = append(events, Event{
			Timestamp: input.Time,
			Type:      t,
			Touch:     d.touch.Stable,
			Dry:       d.dry.Stable,
		})
		switch t {
		case EventTouchOn:
			d.eventCounts.TouchOn++
		case EventTouchOff:
			d.eventCounts.TouchOff++
		case EventSoilDry:
			d.eventCounts.SoilDry++
		case EventSoilWet:
			d.eventCounts.SoilWet++
		}
	}
	return events
}

// processChannel handles debounce logic for a single channel.
// Returns the event type if a transition occurred, "" otherwise.
func (d *Detector) processChannel(ch *ChannelState, newState State, now time.Time) EventType {
	// First time seeing this channel
	if !ch.Baselined {
		if ch.Pending != newState {
			// Start observing, or state changed during baseline: restart
			ch.Pending = newState
			ch.PendingSince = now
			return ""
		}
		if now.Sub(ch.PendingSince) >= d.debounceDuration {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return ""
	}

	if newState == ch.Stable {
		ch.Pending = ""
		return ""
	}

	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
		return ""
	}

	if now.Sub(ch.PendingSince) >= d.debounceDuration {
		ch.Stable = newState
		ch.Pending = ""
		return eventTypeForTransition(ch == &d.touch, newState)
	}
	return ""
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

func eventTypeForTransition(isTouch bool, to State) EventType {
	switch {
	case isTouch && to == StateOn:
		return EventTouchOn
	case isTouch:
		return EventTouchOff
	case to == StateOn:
		return EventSoilDry
	default:
		return EventSoilWet
	}
}

// IsBaselined reports whether the touch channel has a baseline. The soil
// channel may never baseline if there is no probe.
func (d *Detector) IsBaselined() bool {
	return d.touch.Baselined
}

// CurrentState returns the current stable states. An empty State means the
// channel has no baseline yet.
func (d *Detector) CurrentState() (touch, dry State) {
	return d.touch.Stable, d.dry.Stable
}

// EventCountsSnapshot returns a copy of the event counts.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}
