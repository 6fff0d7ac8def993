package actuator

import (
	"sync/atomic"

	"github.com/sweeney/stim-relay/internal/logger"
)

// NullActuator has no physical effect. It logs each stimulation and is
// used for dry runs and for testing a source without hardware attached.
type NullActuator struct {
	log   logger.Logger
	fires atomic.Int64
}

// NewNullActuator creates a NullActuator that logs through log.
func NewNullActuator(log logger.Logger) *NullActuator {
	return &NullActuator{log: log}
}

// Fire logs and returns immediately.
func (n *NullActuator) Fire() error {
	count := n.fires.Add(1)
	n.log.Info("console stimulation", logger.Int("count", int(count)))
	return nil
}

// Fires returns the number of Fire calls so far.
func (n *NullActuator) Fires() int {
	return int(n.fires.Load())
}
