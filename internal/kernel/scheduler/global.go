package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Strategy selects the next subsystem to receive a time slice from a set
// of candidates. Implementations must be side-effect free with respect
// to the candidate list itself (they may read each Subsystem's Priority
// and queue state).
type Strategy interface {
	Name() string
	// Next returns the chosen candidate's index, or -1 if none should run
	// this tick (e.g. all paused or empty).
	Next(candidates []*Subsystem, tick uint64) int
}

// roundRobinStrategy cycles subsystems in registration order with equal
// slices. Priority is ignored entirely.
type roundRobinStrategy struct{}

func (roundRobinStrategy) Name() string { return "round-robin" }
func (roundRobinStrategy) Next(candidates []*Subsystem, tick uint64) int {
	if len(candidates) == 0 {
		return -1
	}
	return int(tick % uint64(len(candidates)))
}

// priorityStrategy sorts candidates by descending Priority, round-robin
// within ties. Priority is the only strategy that reads Subsystem.Priority.
type priorityStrategy struct{}

func (priorityStrategy) Name() string { return "priority" }
func (priorityStrategy) Next(candidates []*Subsystem, tick uint64) int {
	if len(candidates) == 0 {
		return -1
	}
	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return candidates[indices[i]].Priority > candidates[indices[j]].Priority
	})

	// Group by priority tier, round-robin within the top tier.
	top := candidates[indices[0]].Priority
	var tier []int
	for _, idx := range indices {
		if candidates[idx].Priority == top {
			tier = append(tier, idx)
		}
	}
	return tier[int(tick%uint64(len(tier)))]
}

// fifoStrategy services the subsystem with the oldest-waiting message.
type fifoStrategy struct{}

func (fifoStrategy) Name() string { return "fifo" }
func (fifoStrategy) Next(candidates []*Subsystem, tick uint64) int {
	best := -1
	var bestTime time.Time
	for i, s := range candidates {
		ts, ok := s.oldestWaiting()
		if !ok {
			continue
		}
		if best == -1 || ts.Before(bestTime) {
			best = i
			bestTime = ts
		}
	}
	return best
}

// GlobalStats aggregates ticks across the whole scheduler.
type GlobalStats struct {
	Ticks          int64
	TotalProcessed int64
}

// Global is the single cooperative scheduler that runs a tick loop,
// selecting the next subsystem per the active strategy and granting it a
// time slice.
type Global struct {
	mu         sync.RWMutex
	subsystems []*Subsystem
	byName     map[string]int
	strategies map[string]Strategy
	current    string
	budget     Budget

	tick    uint64
	stats   GlobalStats
	running int32
	stop    chan struct{}
	done    chan struct{}
}

// DefaultBudget is used when New is called with a zero Budget.
var DefaultBudget = Budget{Duration: 10 * time.Millisecond, MaxMessages: 16}

// New constructs a global scheduler with the three built-in strategies
// registered and "fifo" as the default.
func New(budget Budget) *Global {
	if budget.Duration == 0 {
		budget = DefaultBudget
	}
	g := &Global{
		byName:     make(map[string]int),
		strategies: make(map[string]Strategy),
		current:    "fifo",
		budget:     budget,
	}
	g.RegisterStrategy(roundRobinStrategy{})
	g.RegisterStrategy(priorityStrategy{})
	g.RegisterStrategy(fifoStrategy{})
	return g
}

// RegisterStrategy adds (or replaces) a named strategy at the scheduler's
// pluggable-strategy extension point.
func (g *Global) RegisterStrategy(s Strategy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.strategies[s.Name()] = s
}

// SetStrategy switches the active strategy by name. No-op if unknown.
func (g *Global) SetStrategy(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.strategies[name]; !ok {
		return false
	}
	g.current = name
	return true
}

// Register adds a subsystem scheduler to the rotation.
func (g *Global) Register(s *Subsystem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.byName[s.Name]; exists {
		return
	}
	g.byName[s.Name] = len(g.subsystems)
	g.subsystems = append(g.subsystems, s)
}

// Unregister removes a subsystem from the rotation.
func (g *Global) Unregister(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.byName[name]
	if !ok {
		return
	}
	g.subsystems = append(g.subsystems[:idx], g.subsystems[idx+1:]...)
	delete(g.byName, name)
	for n, i := range g.byName {
		if i > idx {
			g.byName[n] = i - 1
		}
	}
}

// Tick runs exactly one scheduling decision and grants the winner a time
// slice. Exposed directly so callers (and tests) can drive the scheduler
// deterministically without the background Start loop.
func (g *Global) Tick() {
	g.mu.RLock()
	strategy := g.strategies[g.current]
	candidates := make([]*Subsystem, len(g.subsystems))
	copy(candidates, g.subsystems)
	budget := g.budget
	g.mu.RUnlock()

	if strategy == nil || len(candidates) == 0 {
		atomic.AddInt64(&g.stats.Ticks, 1)
		return
	}

	tick := atomic.AddUint64(&g.tick, 1) - 1
	idx := strategy.Next(candidates, tick)
	if idx < 0 || idx >= len(candidates) {
		atomic.AddInt64(&g.stats.Ticks, 1)
		return
	}

	processed := candidates[idx].RunSlice(budget)
	atomic.AddInt64(&g.stats.Ticks, 1)
	atomic.AddInt64(&g.stats.TotalProcessed, int64(processed))
}

// Start begins the tick loop on its own goroutine, ticking every
// budget.Duration until Stop is called or ctx is cancelled.
func (g *Global) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&g.running, 0, 1) {
		return
	}
	g.stop = make(chan struct{})
	g.done = make(chan struct{})

	interval := g.budget.Duration
	if interval <= 0 {
		interval = DefaultBudget.Duration
	}

	go func() {
		defer close(g.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stop:
				return
			case <-ticker.C:
				g.Tick()
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (g *Global) Stop() {
	if !atomic.CompareAndSwapInt32(&g.running, 1, 0) {
		return
	}
	close(g.stop)
	<-g.done
}

// GetStatistics returns aggregate scheduler statistics.
func (g *Global) GetStatistics() GlobalStats {
	return GlobalStats{
		Ticks:          atomic.LoadInt64(&g.stats.Ticks),
		TotalProcessed: atomic.LoadInt64(&g.stats.TotalProcessed),
	}
}

// GetSubsystemStatistics returns the per-subsystem stats for name.
func (g *Global) GetSubsystemStatistics(name string) (SubStats, bool) {
	g.mu.RLock()
	idx, ok := g.byName[name]
	var s *Subsystem
	if ok {
		s = g.subsystems[idx]
	}
	g.mu.RUnlock()
	if !ok {
		return SubStats{}, false
	}
	return s.Stats(), true
}

// Clear removes all subsystems from the rotation and resets statistics.
// Does not stop the tick loop; a running scheduler with no subsystems
// simply ticks idly.
func (g *Global) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subsystems = nil
	g.byName = make(map[string]int)
	atomic.StoreInt64(&g.stats.Ticks, 0)
	atomic.StoreInt64(&g.stats.TotalProcessed, 0)
	atomic.StoreUint64(&g.tick, 0)
}
