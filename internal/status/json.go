package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event           string         `json:"event,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	State           string         `json:"state"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	StartTime       string         `json:"start_time"`
	Timestamp       string         `json:"timestamp"`
	LastStimulation string         `json:"last_stimulation,omitempty"`
	LastEvent       *LastEventJSON `json:"last_event,omitempty"`
	MQTT            MQTTStatus     `json:"mqtt"`
	Counts          CountsJSON     `json:"counts"`
	Config          ConfigJSON     `json:"config"`
}

// LastEventJSON describes the most recent trigger.
type LastEventJSON struct {
	ID        string `json:"id"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of trigger counts.
type CountsJSON struct {
	Triggers   int `json:"triggers"`
	Stimulated int `json:"stimulated"`
	Prevented  int `json:"prevented"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Source     string  `json:"source"`
	Actuator   string  `json:"actuator"`
	Output     string  `json:"output,omitempty"`
	DebounceMs int64   `json:"debounce_ms"`
	PulseCount int     `json:"pulse_count,omitempty"`
	PulseMs    float64 `json:"pulse_ms,omitempty"`
	PauseMs    float64 `json:"pause_ms,omitempty"`
	Level      float64 `json:"level,omitempty"`
	HTTPAddr   string  `json:"http_addr,omitempty"`
}

const millisRFC3339 = "2006-01-02T15:04:05.000Z07:00"

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Triggers:   snap.Counts.Triggers,
			Stimulated: snap.Counts.Stimulated,
			Prevented:  snap.Counts.Prevented,
		},
		Config: ConfigJSON{
			Source:     snap.Config.Source,
			Actuator:   snap.Config.Actuator,
			Output:     snap.Config.Output,
			DebounceMs: snap.Config.DebounceMs,
			PulseCount: snap.Config.PulseCount,
			PulseMs:    snap.Config.PulseMs,
			PauseMs:    snap.Config.PauseMs,
			Level:      snap.Config.Level,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	if !snap.LastStimulation.IsZero() {
		inner.LastStimulation = snap.LastStimulation.UTC().Format(millisRFC3339)
	}
	if snap.LastEvent != nil {
		inner.LastEvent = &LastEventJSON{
			ID:        snap.LastEvent.ID,
			Outcome:   string(snap.LastEvent.Outcome),
			Timestamp: snap.LastEvent.Timestamp.UTC().Format(millisRFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
