package mqtt

import (
	"sync"

	"github.com/sweeney/stim-relay/internal/logger"
	"github.com/sweeney/stim-relay/internal/logic"
	"github.com/sweeney/stim-relay/internal/relay"
)

type queued struct {
	event  logic.Event
	counts logic.Counts
}

// Notifier forwards relay outcomes to a Publisher from its own goroutine,
// so a slow broker never delays the relay loop. When the queue is full new
// outcomes are dropped and logged.
type Notifier struct {
	pub   Publisher
	log   logger.Logger
	queue chan queued
	wg    sync.WaitGroup
	once  sync.Once
}

// NewNotifier starts forwarding with a queue of size entries.
func NewNotifier(pub Publisher, size int, log logger.Logger) *Notifier {
	if size < 1 {
		size = 1
	}
	n := &Notifier{pub: pub, log: log, queue: make(chan queued, size)}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for q := range n.queue {
		if err := n.pub.Publish(q.event, q.counts); err != nil {
			n.log.Warn("publish error", logger.String("event", string(q.event.Outcome)), logger.Error(err))
		}
	}
}

// OnEvent queues the outcome for publishing.
func (n *Notifier) OnEvent(ev logic.Event, counts logic.Counts) {
	select {
	case n.queue <- queued{event: ev, counts: counts}:
	default:
		n.log.Warn("publish queue full, event dropped", logger.String("id", ev.ID))
	}
}

// OnState is ignored; lifecycle is published by the caller.
func (n *Notifier) OnState(relay.State) {}

// Close stops accepting outcomes and waits for queued ones to be sent.
func (n *Notifier) Close() {
	n.once.Do(func() {
		close(n.queue)
		n.wg.Wait()
	})
}
