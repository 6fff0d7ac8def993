// Package mqtt publishes stimulation and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/stim-relay/internal/logic"
)

// Topic is the MQTT topic for stimulation events.
const Topic = "lab/stim-relay/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lab/stim-relay/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a trigger outcome to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event, counts logic.Counts) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "SHUTDOWN"
	Reason     string // e.g. "SIGTERM", "SOURCE_CLOSED", "FAULT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the message body for a stimulation event.
type Payload struct {
	Stimulation StimulationPayload `json:"stimulation"`
}

// StimulationPayload contains the trigger outcome.
type StimulationPayload struct {
	ID          string     `json:"id"`
	Timestamp   string     `json:"timestamp"`
	Event       string     `json:"event"`
	SinceLastMs int64      `json:"since_last_ms"`
	Counts      CountsJSON `json:"counts"`
}

// CountsJSON is the JSON form of logic.Counts.
type CountsJSON struct {
	Triggers   int `json:"triggers"`
	Stimulated int `json:"stimulated"`
	Prevented  int `json:"prevented"`
}

// FormatPayload creates the JSON payload for a stimulation event.
// Timestamps keep millisecond precision since pulses are milliseconds apart.
func FormatPayload(event logic.Event, counts logic.Counts) ([]byte, error) {
	payload := Payload{
		Stimulation: StimulationPayload{
			ID:          event.ID,
			Timestamp:   event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Event:       string(event.Outcome),
			SinceLastMs: event.SinceLast.Milliseconds(),
			Counts: CountsJSON{
				Triggers:   counts.Triggers,
				Stimulated: counts.Stimulated,
				Prevented:  counts.Prevented,
			},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the message body for simple system events (will message,
// reconnect) that don't carry a status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
