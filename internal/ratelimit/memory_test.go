package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllow_RemainingSequence(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	want := []int64{4, 3, 2, 1, 0}
	for i, expected := range want {
		res, err := l.Allow(ctx, "key-1", 5)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !res.Allowed {
			t.Errorf("call %d: expected allowed", i+1)
		}
		if res.Remaining != expected {
			t.Errorf("call %d: expected remaining %d, got %d", i+1, expected, res.Remaining)
		}
	}

	res, err := l.Allow(ctx, "key-1", 5)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if res.Allowed {
		t.Error("6th call in window: expected rejection")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining clamped to 0, got %d", res.Remaining)
	}
	if res.Limit != 5 {
		t.Errorf("expected limit 5, got %d", res.Limit)
	}
}

func TestAllow_WindowReset(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		l.Allow(ctx, "key-1", 5)
	}

	res, _ := l.Allow(ctx, "key-1", 5)
	if res.Allowed {
		t.Fatal("expected rejection before window elapses")
	}

	// Advance past the window expiry.
	l.now = func() time.Time { return now.Add(Window + time.Second) }

	res, err := l.Allow(ctx, "key-1", 5)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !res.Allowed {
		t.Error("expected fresh window to allow the call")
	}
	if res.Remaining != 4 {
		t.Errorf("expected remaining 4 after reset, got %d", res.Remaining)
	}
	if !res.ResetTime.After(now.Add(Window)) {
		t.Error("expected a new expiry after reset")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Allow(ctx, "busy", 5)
	}

	res, _ := l.Allow(ctx, "quiet", 5)
	if !res.Allowed {
		t.Error("expected separate window per key")
	}
}
