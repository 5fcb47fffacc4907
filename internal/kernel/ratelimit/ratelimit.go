// Package ratelimit throttles message sends per principal, generalizing
// the per-IP token-bucket limiter the teacher applies at the HTTP edge to
// the in-process caller identity the kernel already tracks.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a per-principal token bucket.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig mirrors a conservative, production-leaning default.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 100, Burst: 200}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter rate-limits sendProtected calls keyed by caller identity
// (typically a principal's private authority key).
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	clients map[interface{}]*entry
}

// New constructs a Limiter. A zero-value Config.RequestsPerSecond means
// unlimited (Allow always returns true).
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, clients: make(map[interface{}]*entry)}
}

// Allow reports whether caller may proceed right now, consuming a token
// from its bucket if so.
func (l *Limiter) Allow(caller interface{}) bool {
	if l.cfg.RequestsPerSecond <= 0 {
		return true
	}

	l.mu.Lock()
	e, ok := l.clients[caller]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[caller] = e
	}
	e.lastSeen = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Forget discards a caller's bucket, e.g. on principal disposal.
func (l *Limiter) Forget(caller interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, caller)
}

// Prune removes buckets idle for longer than maxIdle, bounding memory for
// a kernel that sees a steady churn of short-lived principals.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked callers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
