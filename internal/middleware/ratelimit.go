package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contestvn/exam-backend/internal/response"
)

// IPRateLimiter is a per-IP token bucket. It protects the auth endpoints
// from brute-force bursts; the sustained per-identity limits live in the
// auth service's Redis counters.
type IPRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity int
	window   time.Duration
}

type bucket struct {
	tokens   int
	refilled time.Time
}

// NewIPRateLimiter allows capacity requests per window for each client IP.
func NewIPRateLimiter(capacity int, window time.Duration) *IPRateLimiter {
	rl := &IPRateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		window:   window,
	}

	go func() {
		for range time.Tick(time.Minute) {
			rl.evictStale()
		}
	}()

	return rl
}

// Middleware rejects requests with 429 once an IP's bucket is drained.
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *IPRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rl.capacity, refilled: time.Now()}
		rl.buckets[ip] = b
	}

	if elapsed := time.Since(b.refilled); elapsed >= rl.window {
		windows := int(elapsed / rl.window)
		b.tokens += windows * rl.capacity
		if b.tokens > rl.capacity {
			b.tokens = rl.capacity
		}
		b.refilled = time.Now()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (rl *IPRateLimiter) evictStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if time.Since(b.refilled) > 3*rl.window {
			delete(rl.buckets, ip)
		}
	}
}
