// Package ratelimit provides per-client token-bucket rate limiting for the
// websocket message path.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"talkomatic/internal/metrics"
)

// bucket pairs a limiter with its last use so stale entries can be reclaimed.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Manager hands out one token bucket per key (a connection or user ID). A
// background loop reclaims buckets idle longer than the ttl so disconnected
// clients do not accumulate.
type Manager struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int
	ttl   time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a limiter manager and starts its cleanup loop.
func NewManager(limit rate.Limit, burst int, ttl time.Duration) *Manager {
	m := &Manager{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Allow reports whether the key may proceed, consuming one token if so.
func (m *Manager) Allow(key string) bool {
	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = time.Now()
	m.mu.Unlock()

	allowed := b.limiter.Allow()
	if !allowed {
		metrics.RateLimited.Inc()
	}
	return allowed
}

// Remove drops the key's bucket, typically on disconnect.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	delete(m.buckets, key)
	m.mu.Unlock()
}

// Stop terminates the cleanup loop. Idempotent is not required; call once on
// shutdown.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) cleanupLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for key, b := range m.buckets {
				if now.Sub(b.lastSeen) > m.ttl {
					delete(m.buckets, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
