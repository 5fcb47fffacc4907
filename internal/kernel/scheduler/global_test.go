package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/queue"
)

func newCountingSubsystem(name string, priority int) (*Subsystem, *int64) {
	q := queue.New(100, queue.Reject)
	var processed int64
	sub := NewSubsystem(name, priority, q, func(queue.Entry) {
		atomic.AddInt64(&processed, 1)
	})
	return sub, &processed
}

func TestRoundRobinAlternatesAcrossTicks(t *testing.T) {
	g := New(Budget{Duration: time.Second, MaxMessages: 1})
	require.True(t, g.SetStrategy("round-robin"))

	a, aCount := newCountingSubsystem("a", 0)
	b, bCount := newCountingSubsystem("b", 0)
	for i := 0; i < 3; i++ {
		mustEnqueue(t, a.Queue(), "echo://ping")
		mustEnqueue(t, b.Queue(), "echo://ping")
	}
	g.Register(a)
	g.Register(b)

	for i := 0; i < 4; i++ {
		g.Tick()
	}

	assert.Equal(t, int64(2), atomic.LoadInt64(aCount))
	assert.Equal(t, int64(2), atomic.LoadInt64(bCount))
}

func TestPriorityStrategyFavorsHigherPriority(t *testing.T) {
	g := New(Budget{Duration: time.Second, MaxMessages: 1})
	require.True(t, g.SetStrategy("priority"))

	low, lowCount := newCountingSubsystem("low", 1)
	high, highCount := newCountingSubsystem("high", 10)
	for i := 0; i < 5; i++ {
		mustEnqueue(t, low.Queue(), "echo://ping")
		mustEnqueue(t, high.Queue(), "echo://ping")
	}
	g.Register(low)
	g.Register(high)

	for i := 0; i < 5; i++ {
		g.Tick()
	}

	assert.Equal(t, int64(5), atomic.LoadInt64(highCount))
	assert.Equal(t, int64(0), atomic.LoadInt64(lowCount))
}

func TestFIFOStrategyServicesOldestWaitingFirst(t *testing.T) {
	g := New(Budget{Duration: time.Second, MaxMessages: 1})
	require.True(t, g.SetStrategy("fifo"))

	stale, staleCount := newCountingSubsystem("stale", 0)
	mustEnqueue(t, stale.Queue(), "echo://ping")

	time.Sleep(2 * time.Millisecond)

	fresh, freshCount := newCountingSubsystem("fresh", 0)
	mustEnqueue(t, fresh.Queue(), "echo://ping")

	g.Register(fresh)
	g.Register(stale)

	g.Tick()

	assert.Equal(t, int64(1), atomic.LoadInt64(staleCount))
	assert.Equal(t, int64(0), atomic.LoadInt64(freshCount))
}

func TestUnknownStrategyNameRejected(t *testing.T) {
	g := New(Budget{})
	assert.False(t, g.SetStrategy("does-not-exist"))
}

// leastRecentlyServicedStrategy proves RegisterStrategy's extension point:
// it favors the subsystem whose last completed slice is furthest in the
// past, falling back to registration order for subsystems that have never
// run.
type leastRecentlyServicedStrategy struct{}

func (leastRecentlyServicedStrategy) Name() string { return "least-recently-serviced" }
func (leastRecentlyServicedStrategy) Next(candidates []*Subsystem, tick uint64) int {
	best := -1
	var bestAt time.Time
	for i, s := range candidates {
		if s.Queue().Len() == 0 {
			continue
		}
		stats := s.Stats()
		if best == -1 || stats.LastTickAt.Before(bestAt) {
			best = i
			bestAt = stats.LastTickAt
		}
	}
	return best
}

func TestRegisterStrategyExtensionPoint(t *testing.T) {
	g := New(Budget{Duration: time.Second, MaxMessages: 1})
	g.RegisterStrategy(leastRecentlyServicedStrategy{})
	require.True(t, g.SetStrategy("least-recently-serviced"))

	a, aCount := newCountingSubsystem("a", 0)
	mustEnqueue(t, a.Queue(), "echo://ping")
	mustEnqueue(t, a.Queue(), "echo://ping")
	g.Register(a)

	b, bCount := newCountingSubsystem("b", 0)
	mustEnqueue(t, b.Queue(), "echo://ping")
	g.Register(b)

	g.Tick() // a has never run (zero LastTickAt) -> serviced first
	g.Tick() // b has never run -> serviced next
	g.Tick() // a ran longer ago than b -> serviced again

	assert.Equal(t, int64(2), atomic.LoadInt64(aCount))
	assert.Equal(t, int64(1), atomic.LoadInt64(bCount))
}

func TestUnregisterRemovesFromRotation(t *testing.T) {
	g := New(Budget{Duration: time.Second, MaxMessages: 1})
	require.True(t, g.SetStrategy("round-robin"))

	a, aCount := newCountingSubsystem("a", 0)
	mustEnqueue(t, a.Queue(), "echo://ping")
	g.Register(a)
	g.Unregister("a")

	g.Tick()
	assert.Equal(t, int64(0), atomic.LoadInt64(aCount))
}

func TestStartStopDrivesTicksInBackground(t *testing.T) {
	g := New(Budget{Duration: 2 * time.Millisecond, MaxMessages: 10})
	require.True(t, g.SetStrategy("fifo"))

	a, aCount := newCountingSubsystem("a", 0)
	for i := 0; i < 20; i++ {
		mustEnqueue(t, a.Queue(), "echo://ping")
	}
	g.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	g.Stop()

	assert.Greater(t, atomic.LoadInt64(aCount), int64(0))
}

func TestGetStatisticsAndClear(t *testing.T) {
	g := New(Budget{Duration: time.Second, MaxMessages: 1})
	a, _ := newCountingSubsystem("a", 0)
	mustEnqueue(t, a.Queue(), "echo://ping")
	g.Register(a)

	g.Tick()
	stats := g.GetStatistics()
	assert.Equal(t, int64(1), stats.Ticks)
	assert.Equal(t, int64(1), stats.TotalProcessed)

	subStats, ok := g.GetSubsystemStatistics("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), subStats.Processed)

	g.Clear()
	_, ok = g.GetSubsystemStatistics("a")
	assert.False(t, ok)
	assert.Equal(t, int64(0), g.GetStatistics().Ticks)
}
