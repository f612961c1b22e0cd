package router

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_WindowLimit(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("event %d should be allowed", i+1)
		}
	}
	if rl.Allow("c1") {
		t.Error("fourth event in window should be rejected")
	}
	if !rl.Allow("c2") {
		t.Error("limits are per connection")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("c1") {
		t.Error("new window should reset the count")
	}
}

func TestRateLimiter_ZeroDisables(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 1000; i++ {
		if !rl.Allow("c1") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
	if rl.Tracked() != 0 {
		t.Error("disabled limiter should not track state")
	}
}

func TestRateLimiter_ForgetAndCleanup(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10)
	rl.now = func() time.Time { return now }

	rl.Allow("c1")
	rl.Allow("c2")
	rl.Forget("c1")
	if rl.Tracked() != 1 {
		t.Errorf("expected 1 tracked connection after Forget, got %d", rl.Tracked())
	}

	now = now.Add(6 * time.Minute)
	rl.Cleanup()
	if rl.Tracked() != 0 {
		t.Errorf("expected idle state cleaned up, got %d", rl.Tracked())
	}
}

func TestRateLimiter_CheckReportsExceeded(t *testing.T) {
	rl := NewRateLimiter(1)

	if err := rl.Check("c1"); err != nil {
		t.Fatalf("first event should pass, got %v", err)
	}
	if err := rl.Check("c1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("expected ErrRateLimitExceeded, got %v", err)
	}
}
