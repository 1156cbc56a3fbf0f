// Package downstream serves the gateway's PULL side: it queues pending
// transmissions and answers PULL_DATA polls with PULL_RESP datagrams.
package downstream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/metrics"
)

// readyWindow is how far ahead of its deadline a downlink may be handed
// to a gateway. Earlier than this the item goes back to the queue and
// waits for a later poll.
const readyWindow = time.Second

// Item is a queued downlink with its transmit deadline.
type Item struct {
	Txpk     gateway.Txpk
	Kind     string // "lorawan" or "p2p"
	Deadline time.Time
}

// Scheduler holds downlinks until a gateway polls for them.
type Scheduler struct {
	mu      sync.Mutex
	queue   []Item
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewScheduler creates an empty downlink scheduler.
func NewScheduler(logger *slog.Logger, recorder metrics.Recorder) *Scheduler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Scheduler{
		logger:  logger.With("component", "downstream.scheduler"),
		metrics: recorder,
	}
}

// Enqueue accepts a downlink for transmission.
func (s *Scheduler) Enqueue(item Item) {
	s.mu.Lock()
	s.queue = append(s.queue, item)
	depth := len(s.queue)
	s.mu.Unlock()

	s.metrics.IncDownlinkScheduled(item.Kind)
	s.logger.Debug("downlink queued",
		"kind", item.Kind,
		"deadline", item.Deadline,
		"queue_depth", depth,
	)
}

// Next pops the first downlink whose transmit window is open. Items not
// yet inside the window are requeued, items whose window has passed are
// dropped as lost.
func (s *Scheduler) Next(now time.Time) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Bounded scan: each pending item is inspected at most once.
	for n := len(s.queue); n > 0; n-- {
		item := s.queue[0]
		s.queue = s.queue[1:]

		delay := item.Deadline.Sub(now)
		switch {
		case delay > readyWindow:
			// Too early, try again on a later poll.
			s.queue = append(s.queue, item)
		case delay < 0:
			s.logger.Warn("lost window to send downlink",
				"kind", item.Kind,
				"late_by", -delay,
			)
			s.metrics.IncDownlinkLost()
		default:
			return item, true
		}
	}

	return Item{}, false
}

// Len returns the number of queued downlinks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
