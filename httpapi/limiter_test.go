package httpapi

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstThenDenies(t *testing.T) {
	limiter := NewRateLimiter(1, 2, time.Minute)
	now := time.Unix(1700000000, 0)

	if !limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected first request allowed")
	}
	if !limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected burst request allowed")
	}
	if limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected request over burst denied")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	limiter := NewRateLimiter(1, 1, time.Minute)
	now := time.Unix(1700000000, 0)

	if !limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected first request allowed")
	}
	if limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected immediate second request denied")
	}
	if !limiter.Allow("10.0.0.1", now.Add(time.Second)) {
		t.Fatalf("expected request after refill allowed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(1, 1, time.Minute)
	now := time.Unix(1700000000, 0)

	if !limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected first key allowed")
	}
	if limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected first key throttled")
	}
	if !limiter.Allow("10.0.0.2", now) {
		t.Fatalf("expected second key unaffected")
	}
}

func TestRateLimiterNilAndEmptyKeyAllow(t *testing.T) {
	var limiter *RateLimiter
	now := time.Unix(1700000000, 0)

	if !limiter.Allow("10.0.0.1", now) {
		t.Fatalf("expected nil limiter to allow")
	}

	limiter = NewRateLimiter(1, 1, time.Minute)
	for i := 0; i < 10; i++ {
		if !limiter.Allow("  ", now) {
			t.Fatalf("expected blank key to bypass limiting")
		}
	}
}

func TestNewRateLimiterRejectsInvalidArgs(t *testing.T) {
	if NewRateLimiter(0, 1, time.Minute) != nil {
		t.Fatalf("expected nil limiter for zero rps")
	}
	if NewRateLimiter(1, 0, time.Minute) != nil {
		t.Fatalf("expected nil limiter for zero burst")
	}
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter(1000, 1000, time.Minute)
	start := time.Unix(1700000000, 0)

	limiter.Allow("idle-client", start)

	later := start.Add(2 * time.Minute)
	for i := 1; i < limiterSweepEvery; i++ {
		limiter.Allow("busy-client", later)
	}

	limiter.mu.Lock()
	_, idlePresent := limiter.byKey["idle-client"]
	_, busyPresent := limiter.byKey["busy-client"]
	limiter.mu.Unlock()

	if idlePresent {
		t.Fatalf("expected idle bucket swept out")
	}
	if !busyPresent {
		t.Fatalf("expected active bucket kept")
	}
}
