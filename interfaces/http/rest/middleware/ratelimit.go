package middleware

import (
	"net/http"
	"sync"
	"time"
)

// tokenBucket tracks per-client request budget
type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// RateLimiter applies token bucket rate limiting keyed by client IP.
// Cold partition loads make some requests expensive, so the bucket is
// sized for bursts rather than steady throughput.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	maxTokens  int
	refillRate time.Duration
}

// NewRateLimiter creates a rate limiter refilling one token per
// refillRate up to maxTokens.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	limiter := &RateLimiter{
		buckets:    make(map[string]*tokenBucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}

	go limiter.cleanup()

	return limiter
}

// Allow checks if a request from key is allowed
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &tokenBucket{
			tokens:     l.maxTokens,
			lastRefill: time.Now(),
		}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill tokens based on time elapsed
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(elapsed / l.refillRate)

	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, l.maxTokens)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// cleanup removes idle buckets periodically
func (l *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			b.mu.Lock()
			if now.Sub(b.lastRefill) > 1*time.Hour {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
		l.mu.Unlock()
	}
}

// Handler wraps next with the rate limit, keyed by RemoteAddr. Run it
// after chi's RealIP middleware so proxied clients are keyed correctly.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
