package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of one limiter check. Remaining is clamped at
// zero; ResetTime is when the current window expires.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetTime time.Time
}

// Limiter is a fixed-window request limiter keyed by API key. The window is
// 60 seconds; the counter is incremented on every call regardless of outcome
// and the request is accepted iff the post-increment count is within the cap.
// Bursts across a window boundary are a documented approximation of this
// scheme, not a bug.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64) (*Result, error)
}

const Window = 60 * time.Second
