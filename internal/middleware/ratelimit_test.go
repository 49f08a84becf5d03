package middleware

import (
	"testing"
	"time"
)

func TestIPRateLimiterDrainsAndRefills(t *testing.T) {
	rl := &IPRateLimiter{
		buckets:  map[string]*bucket{},
		capacity: 3,
		window:   time.Hour,
	}

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d unexpectedly limited", i)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("drained bucket must refuse")
	}

	// Other IPs keep their own bucket.
	if !rl.allow("5.6.7.8") {
		t.Fatal("fresh IP limited")
	}

	// Force the refill window to elapse.
	rl.buckets["1.2.3.4"].refilled = time.Now().Add(-2 * time.Hour)
	if !rl.allow("1.2.3.4") {
		t.Fatal("bucket did not refill after window")
	}
}

func TestIPRateLimiterEviction(t *testing.T) {
	rl := &IPRateLimiter{
		buckets:  map[string]*bucket{},
		capacity: 1,
		window:   time.Minute,
	}
	rl.allow("1.2.3.4")
	rl.buckets["1.2.3.4"].refilled = time.Now().Add(-10 * time.Minute)

	rl.evictStale()
	if _, ok := rl.buckets["1.2.3.4"]; ok {
		t.Fatal("stale bucket not evicted")
	}
}
