// Package status provides a thread-safe status tracker for the relay daemon.
// It is fed by the relay loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/stim-relay/internal/logic"
	"github.com/sweeney/stim-relay/internal/relay"
)

// Config contains daemon configuration for display.
type Config struct {
	Source     string
	Actuator   string
	Output     string
	DebounceMs int64
	PulseCount int
	PulseMs    float64
	PauseMs    float64
	Level      float64
	Broker     string
	HTTPAddr   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State           relay.State
	Counts          logic.Counts
	LastEvent       *logic.Event
	LastStimulation time.Time // zero if none yet
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
// It implements relay.Observer.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     relay.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// OnState records the relay loop state.
func (t *Tracker) OnState(s relay.State) {
	t.mu.Lock()
	t.snap.State = s
	t.mu.Unlock()
}

// OnEvent records a trigger outcome and the running counts.
func (t *Tracker) OnEvent(ev logic.Event, counts logic.Counts) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.snap.LastEvent = &ev
	if ev.Outcome == logic.OutcomeStimulated {
		t.snap.LastStimulation = ev.Timestamp
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastEvent != nil {
		ev := *s.LastEvent
		s.LastEvent = &ev
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
