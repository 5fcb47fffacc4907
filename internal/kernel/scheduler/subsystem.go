// Package scheduler implements the per-subsystem drain loop and the
// global cooperative tick scheduler that grants each subsystem bounded
// time slices in turn.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/queue"
)

// Processor handles one dequeued entry. It runs to completion before the
// scheduler dequeues the next one — at most one handler is active per
// subsystem at a time.
type Processor func(entry queue.Entry)

// Budget bounds one time slice: a wall-clock deadline and a maximum
// number of messages to drain, whichever is reached first.
type Budget struct {
	Duration    time.Duration
	MaxMessages int
}

// SubStats tracks a subsystem scheduler's lifetime counters.
type SubStats struct {
	Processed   int64
	Ticks       int64
	LastTick    time.Duration
	LastTickAt  time.Time
}

// Subsystem drains one subsystem's queue under a time-slice budget. It
// honors a Paused flag and an advisory Priority.
type Subsystem struct {
	Name      string
	Priority  int
	queue     *queue.Queue
	processor Processor

	mu     sync.Mutex
	paused bool
	stats  SubStats
}

// NewSubsystem constructs a per-subsystem scheduler over q, invoking
// processor for each dequeued entry.
func NewSubsystem(name string, priority int, q *queue.Queue, processor Processor) *Subsystem {
	return &Subsystem{Name: name, Priority: priority, queue: q, processor: processor}
}

// SetPaused toggles whether RunSlice drains anything.
func (s *Subsystem) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports the current paused state.
func (s *Subsystem) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Queue exposes the underlying queue (used by scheduler strategies that
// need to inspect queue depth/age, and by the kernel to enqueue).
func (s *Subsystem) Queue() *queue.Queue { return s.queue }

// RunSlice drains up to budget.MaxMessages entries, or until
// budget.Duration elapses, whichever comes first. Returns the number of
// messages processed this slice.
func (s *Subsystem) RunSlice(budget Budget) int {
	if s.Paused() {
		return 0
	}

	start := time.Now()
	deadline := start.Add(budget.Duration)
	maxMsgs := budget.MaxMessages
	if maxMsgs <= 0 {
		maxMsgs = 1
	}

	processed := 0
	for processed < maxMsgs {
		if budget.Duration > 0 && time.Now().After(deadline) {
			break
		}
		entry, ok := s.queue.Dequeue()
		if !ok {
			break
		}
		s.processor(entry)
		processed++
	}

	elapsed := time.Since(start)
	atomic.AddInt64(&s.stats.Processed, int64(processed))
	atomic.AddInt64(&s.stats.Ticks, 1)
	s.mu.Lock()
	s.stats.LastTick = elapsed
	s.stats.LastTickAt = start
	s.mu.Unlock()

	return processed
}

// Stats returns a snapshot of this subsystem's scheduling statistics.
func (s *Subsystem) Stats() SubStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats
	snap.Processed = atomic.LoadInt64(&s.stats.Processed)
	snap.Ticks = atomic.LoadInt64(&s.stats.Ticks)
	return snap
}

// oldestWaiting returns the enqueue time of the front entry, or the zero
// time if the queue is empty (used by the fifo global strategy).
func (s *Subsystem) oldestWaiting() (time.Time, bool) {
	e, ok := s.queue.Peek()
	if !ok {
		return time.Time{}, false
	}
	return e.EnqueuedAt, true
}
