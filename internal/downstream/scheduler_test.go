package downstream

import (
	"log/slog"
	"testing"
	"time"

	"github.com/lktlns/lktlns/internal/gateway"
	"github.com/lktlns/lktlns/internal/metrics"
)

func newTestScheduler() *Scheduler {
	return NewScheduler(slog.Default(), metrics.NewNoop())
}

func queuedItem(kind string, deadline time.Time) Item {
	tx := gateway.NewTxpk()
	tx.SetData([]byte{0x01})
	return Item{Txpk: tx, Kind: kind, Deadline: deadline}
}

func TestScheduler_NextEmpty(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	if _, ok := s.Next(time.Now()); ok {
		t.Error("Next on empty queue should return false")
	}
}

func TestScheduler_NextInWindow(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	now := time.Now()
	s.Enqueue(queuedItem("lorawan", now.Add(500*time.Millisecond)))

	item, ok := s.Next(now)
	if !ok {
		t.Fatal("Expected a ready downlink")
	}
	if item.Kind != "lorawan" {
		t.Errorf("Kind = %q, want lorawan", item.Kind)
	}
	if s.Len() != 0 {
		t.Errorf("Queue should be empty, has %d", s.Len())
	}
}

func TestScheduler_NextTooEarly(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	now := time.Now()
	s.Enqueue(queuedItem("lorawan", now.Add(10*time.Second)))

	if _, ok := s.Next(now); ok {
		t.Error("Downlink far from its deadline should not be released")
	}
	if s.Len() != 1 {
		t.Errorf("Early downlink should be requeued, queue has %d", s.Len())
	}
}

func TestScheduler_NextExpired(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	recorder := metrics.NewInMemory()
	s.metrics = recorder

	now := time.Now()
	s.Enqueue(queuedItem("p2p", now.Add(-time.Second)))

	if _, ok := s.Next(now); ok {
		t.Error("Expired downlink should not be released")
	}
	if s.Len() != 0 {
		t.Errorf("Expired downlink should be dropped, queue has %d", s.Len())
	}
	if got := recorder.Snapshot().DownlinksLost; got != 1 {
		t.Errorf("DownlinksLost = %d, want 1", got)
	}
}

func TestScheduler_NextSkipsToReady(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	now := time.Now()
	s.Enqueue(queuedItem("lorawan", now.Add(time.Hour)))
	s.Enqueue(queuedItem("p2p", now.Add(200*time.Millisecond)))

	item, ok := s.Next(now)
	if !ok {
		t.Fatal("Expected the ready downlink despite an early one ahead of it")
	}
	if item.Kind != "p2p" {
		t.Errorf("Kind = %q, want p2p", item.Kind)
	}
	if s.Len() != 1 {
		t.Errorf("Early downlink should remain queued, queue has %d", s.Len())
	}
}

func TestScheduler_OnePerPoll(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	now := time.Now()
	s.Enqueue(queuedItem("lorawan", now))
	s.Enqueue(queuedItem("lorawan", now))

	if _, ok := s.Next(now); !ok {
		t.Fatal("Expected first downlink")
	}
	if s.Len() != 1 {
		t.Errorf("Second downlink should wait for the next poll, queue has %d", s.Len())
	}
}
