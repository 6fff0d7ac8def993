// Package relay connects an event source to an actuator through the
// debounce gate.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/stim-relay/internal/actuator"
	"github.com/sweeney/stim-relay/internal/logger"
	"github.com/sweeney/stim-relay/internal/logic"
	"github.com/sweeney/stim-relay/internal/source"
)

// State is the loop's position in its lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateConnected State = "CONNECTED"
	StateFiring    State = "FIRING"
	StateStopped   State = "STOPPED"
)

// Observer is told about state changes and trigger outcomes. Calls are made
// from the loop goroutine and must not block for long.
type Observer interface {
	OnState(s State)
	OnEvent(ev logic.Event, counts logic.Counts)
}

// Config configures a Loop.
type Config struct {
	Source   source.Source
	Actuator actuator.Actuator
	// Window is the debounce window, used as given. Zero lets every
	// trigger fire; callers wanting the default pass logic.DefaultWindow.
	Window time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to uuid.NewString.
	NewID     func() string
	Observers []Observer
}

// Loop is the run-forever relay. It is single-flight: WaitForTrigger and
// Fire are never in progress at the same time.
type Loop struct {
	src   source.Source
	act   actuator.Actuator
	gate  *logic.Gate
	now   func() time.Time
	newID func() string
	obs   []Observer
	log   logger.Logger

	mu     sync.RWMutex
	state  State
	counts logic.Counts
}

// New creates a loop. It panics if Source or Actuator is nil.
func New(cfg Config, log logger.Logger) *Loop {
	if cfg.Source == nil || cfg.Actuator == nil {
		panic("relay: source and actuator are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Loop{
		src:   cfg.Source,
		act:   cfg.Actuator,
		gate:  logic.NewGate(cfg.Window),
		now:   cfg.Now,
		newID: cfg.NewID,
		obs:   cfg.Observers,
		log:   log,
		state: StateIdle,
	}
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Counts returns the trigger counters so far.
func (l *Loop) Counts() logic.Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts
}

// Window returns the debounce window in use.
func (l *Loop) Window() time.Duration {
	return l.gate.Window()
}

// Run connects the source and relays triggers until the source ends
// (nil), ctx is cancelled (nil), or a fault occurs (error). A failed
// connect returns an error wrapping source.ErrConnection; an actuator
// fault wraps actuator.ErrDeviceFault.
// The source is closed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.src.Connect(ctx); err != nil {
		l.setState(StateStopped)
		return fmt.Errorf("connect %s: %w", l.src, err)
	}
	defer l.src.Close()

	l.setState(StateConnected)
	l.log.Info("relay started",
		logger.String("source", l.src.String()),
		logger.Duration("debounce", l.gate.Window()))

	for {
		if ctx.Err() != nil {
			return l.cancelled()
		}
		triggered, err := l.src.WaitForTrigger(ctx)
		if err != nil {
			l.setState(StateStopped)
			return fmt.Errorf("wait for trigger: %w", err)
		}
		if !triggered {
			l.setState(StateStopped)
			l.log.Info("source ended, relay stopped")
			return nil
		}
		// A trigger racing with cancellation is dropped, never fired.
		if ctx.Err() != nil {
			return l.cancelled()
		}

		if err := l.handleTrigger(); err != nil {
			l.setState(StateStopped)
			return err
		}
	}
}

func (l *Loop) cancelled() error {
	l.setState(StateStopped)
	l.log.Info("relay cancelled")
	return nil
}

// handleTrigger consults the gate exactly once and fires iff it allows.
func (l *Loop) handleTrigger() error {
	t := l.now()
	since := l.gate.SinceLast(t)

	if !l.gate.TryAcquire(t) {
		l.log.Warn("stimulation prevented from firing",
			logger.Duration("since_last", since),
			logger.Duration("window", l.gate.Window()))
		l.record(logic.Event{ID: l.newID(), Timestamp: t, Outcome: logic.OutcomePrevented, SinceLast: since})
		return nil
	}

	l.setState(StateFiring)
	if err := l.act.Fire(); err != nil {
		return fmt.Errorf("fire: %w", err)
	}
	l.setState(StateConnected)

	l.record(logic.Event{ID: l.newID(), Timestamp: t, Outcome: logic.OutcomeStimulated, SinceLast: since})
	return nil
}

func (l *Loop) record(ev logic.Event) {
	l.mu.Lock()
	l.counts.Record(ev.Outcome)
	counts := l.counts
	l.mu.Unlock()

	for _, o := range l.obs {
		o.OnEvent(ev, counts)
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	changed := l.state != s
	l.state = s
	l.mu.Unlock()

	if !changed {
		return
	}
	l.log.Debug("state", logger.String("state", string(s)))
	for _, o := range l.obs {
		o.OnState(s)
	}
}
