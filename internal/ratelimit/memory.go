package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int64
	resetTime time.Time
}

// MemoryLimiter keeps windows in a process-local map. Counters are therefore
// per instance, not global, when the gateway runs clustered; use the Redis
// limiter for shared counters.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int64) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetTime) {
		w = &window{resetTime: now.Add(Window)}
		l.windows[key] = w
	}

	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: w.resetTime,
	}, nil
}
