// Package ratelimit bounds how many requests one user may make per minute.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const idleLimiterTTL = 10 * time.Minute

type memoryEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Memory is a per-process token bucket per key, refilled at perMinute/60 per
// second with a burst of perMinute.
type Memory struct {
	perMinute int

	mu        sync.Mutex
	limiters  map[string]*memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemory(perMinute int) *Memory {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Memory{
		perMinute: perMinute,
		limiters:  make(map[string]*memoryEntry),
		now:       time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	limiter := m.limiterFor(key, now)

	reservation := limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, Limit: m.perMinute, RetryAfter: delay}, nil
	}
	remaining := int(limiter.TokensAt(now))
	return Decision{Allowed: true, Limit: m.perMinute, Remaining: max(remaining, 0)}, nil
}

func (m *Memory) limiterFor(key string, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > idleLimiterTTL {
		for k, entry := range m.limiters {
			if now.Sub(entry.lastAccess) > idleLimiterTTL {
				delete(m.limiters, k)
			}
		}
		m.lastSweep = now
	}

	entry, ok := m.limiters[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(rate.Limit(m.perMinute)/60, m.perMinute)}
		m.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}
