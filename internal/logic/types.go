// Package logic contains the pure decision logic of the relay.
// This package has NO external dependencies (no hardware, network, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// DefaultWindow is the debounce window used when none is configured.
const DefaultWindow = 5 * time.Second

// Outcome is what happened to an observed trigger.
type Outcome string

const (
	OutcomeStimulated Outcome = "STIMULATED"
	OutcomePrevented  Outcome = "PREVENTED"
)

// Event records a single observed trigger and its outcome.
type Event struct {
	ID        string
	Timestamp time.Time
	Outcome   Outcome
	// SinceLast is the time since the previous accepted trigger.
	// Zero when no trigger has been accepted before.
	SinceLast time.Duration
}

// Counts tracks triggers since startup.
type Counts struct {
	Triggers   int
	Stimulated int
	Prevented  int
}

// Record bumps the counters for one outcome.
func (c *Counts) Record(o Outcome) {
	c.Triggers++
	switch o {
	case OutcomeStimulated:
		c.Stimulated++
	case OutcomePrevented:
		c.Prevented++
	}
}
