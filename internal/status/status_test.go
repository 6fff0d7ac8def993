package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/stim-relay/internal/logic"
	"github.com/sweeney/stim-relay/internal/relay"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{Source: "tcp 127.0.0.1:5690", DebounceMs: 5000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(t0, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(t0) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, t0)
	}
	if snap.State != relay.StateIdle {
		t.Errorf("State: got %q, want IDLE", snap.State)
	}
	if snap.Config.DebounceMs != 5000 {
		t.Errorf("Config.DebounceMs: got %d, want 5000", snap.Config.DebounceMs)
	}
	if snap.LastEvent != nil || !snap.LastStimulation.IsZero() {
		t.Error("expected no last event initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestOnEvent(t *testing.T) {
	tr := NewTracker(t0, Config{})

	stim := logic.Event{ID: "a", Timestamp: t0.Add(time.Second), Outcome: logic.OutcomeStimulated}
	tr.OnEvent(stim, logic.Counts{Triggers: 1, Stimulated: 1})

	prev := logic.Event{ID: "b", Timestamp: t0.Add(2 * time.Second), Outcome: logic.OutcomePrevented}
	tr.OnEvent(prev, logic.Counts{Triggers: 2, Stimulated: 1, Prevented: 1})

	snap := tr.Snapshot()
	if snap.Counts.Triggers != 2 || snap.Counts.Prevented != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.LastEvent == nil || snap.LastEvent.ID != "b" {
		t.Errorf("LastEvent: got %+v, want id b", snap.LastEvent)
	}
	// A prevented trigger does not move the last stimulation time.
	if !snap.LastStimulation.Equal(stim.Timestamp) {
		t.Errorf("LastStimulation: got %v, want %v", snap.LastStimulation, stim.Timestamp)
	}
}

func TestOnState(t *testing.T) {
	tr := NewTracker(t0, Config{})
	for _, s := range []relay.State{relay.StateConnected, relay.StateFiring, relay.StateStopped} {
		tr.OnState(s)
		if got := tr.Snapshot().State; got != s {
			t.Errorf("State: got %q, want %q", got, s)
		}
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(t0, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(t0, Config{})
	tr.OnEvent(logic.Event{ID: "a", Outcome: logic.OutcomeStimulated}, logic.Counts{Triggers: 1})

	snap := tr.Snapshot()
	snap.LastEvent.ID = "mutated"

	if got := tr.Snapshot().LastEvent.ID; got != "a" {
		t.Errorf("tracker state changed through snapshot: got %q", got)
	}
}

func TestUptime(t *testing.T) {
	tr := NewTracker(t0, Config{})
	tr.now = func() time.Time { return t0.Add(90 * time.Second) }

	if got := tr.Snapshot().Uptime(); got != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			tr.OnEvent(logic.Event{Outcome: logic.OutcomeStimulated, Timestamp: time.Now()}, logic.Counts{Triggers: n})
		}(i)
		go func() {
			defer wg.Done()
			tr.OnState(relay.StateFiring)
			tr.SetMQTTConnected(true)
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		State:           relay.StateConnected,
		Counts:          logic.Counts{Triggers: 3, Stimulated: 2, Prevented: 1},
		LastEvent:       &logic.Event{ID: "e1", Outcome: logic.OutcomePrevented, Timestamp: t0.Add(65*time.Second + 250*time.Millisecond)},
		LastStimulation: t0.Add(61 * time.Second),
		StartTime:       t0,
		Now:             t0.Add(2 * time.Minute),
		MQTTConnected:   true,
		Config: Config{
			Source:     "tcp 127.0.0.1:5690",
			Actuator:   "pulse-train",
			DebounceMs: 5000,
			PulseCount: 5,
			PulseMs:    2,
			PauseMs:    2,
			Level:      5,
			Broker:     "tcp://broker:1883",
		},
	}

	var out StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := out.Status
	if s.Event != "" || s.Reason != "" {
		t.Errorf("web status must not carry event/reason: %+v", s)
	}
	if s.State != "CONNECTED" {
		t.Errorf("state: got %q", s.State)
	}
	if s.UptimeSeconds != 120 {
		t.Errorf("uptime_seconds: got %d, want 120", s.UptimeSeconds)
	}
	if s.LastStimulation != "2026-01-01T00:01:01.000Z" {
		t.Errorf("last_stimulation: got %q", s.LastStimulation)
	}
	if s.LastEvent == nil || s.LastEvent.Timestamp != "2026-01-01T00:01:05.250Z" || s.LastEvent.Outcome != "PREVENTED" {
		t.Errorf("last_event: got %+v", s.LastEvent)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.Counts != (CountsJSON{Triggers: 3, Stimulated: 2, Prevented: 1}) {
		t.Errorf("counts: got %+v", s.Counts)
	}
	if s.Config.PulseCount != 5 || s.Config.DebounceMs != 5000 {
		t.Errorf("config: got %+v", s.Config)
	}
}

func TestFormatJSONOmitsEmptyLastEvent(t *testing.T) {
	data := string(FormatJSON(Snapshot{State: relay.StateIdle, StartTime: t0, Now: t0}))
	if strings.Contains(data, "last_event") || strings.Contains(data, "last_stimulation") {
		t.Errorf("expected no last_* fields: %s", data)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{State: relay.StateStopped, StartTime: t0, Now: t0.Add(time.Second)}

	var out StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status.Event != "SHUTDOWN" || out.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", out.Status.Event, out.Status.Reason)
	}
	if out.Status.State != "STOPPED" {
		t.Errorf("state: got %q", out.Status.State)
	}
}
