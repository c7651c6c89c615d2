package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/botapi"
)

// RateLimitInfo configures a token-bucket limiter: MaxRequests per
// WindowSeconds with bursts up to Burst.
type RateLimitInfo struct {
	WindowSeconds int
	MaxRequests   int
	Burst         int
}

// defaultRateLimit mirrors the upstream platform's ~30 msg/s per bot,
// with headroom for polling clients that hammer getUpdates.
var defaultRateLimit = RateLimitInfo{
	WindowSeconds: 60,
	MaxRequests:   1800,
	Burst:         120,
}

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a bucket with the given capacity and refill rate.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available. It returns whether the
// request may proceed and, when it may not, how long until the next token.
func (tb *TokenBucket) Allow() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, 0
	}

	wait := time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second))
	return false, wait
}

// RateLimiter manages per-token buckets.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket
	config  RateLimitInfo
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitInfo) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}
	refillRate := float64(rl.config.MaxRequests) / float64(rl.config.WindowSeconds)
	bucket = NewTokenBucket(rl.config.Burst, refillRate)
	rl.buckets[key] = bucket
	return bucket
}

// Allow reports whether the keyed caller may proceed.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	return rl.getBucket(key).Allow()
}

// cleanupLoop drops buckets idle for over an hour.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for key, bucket := range rl.buckets {
			bucket.mu.Lock()
			if time.Since(bucket.lastRefill) > time.Hour {
				delete(rl.buckets, key)
			}
			bucket.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware enforces a per-token limit on the bot route. The key
// is the raw token segment of the path; an over-limit caller gets a 429
// with Retry-After rather than queueing behind the dispatcher.
func RateLimitMiddleware(config RateLimitInfo) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := tokenSegment(r.URL.Path)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, wait := limiter.Allow(key)
			if !allowed {
				retryAfter := int(wait.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn().
					Str("path", redactPath(r.URL.Path)).
					Int("retryAfter", retryAfter).
					Msg("rate limit exceeded")

				writeJSON(w, http.StatusTooManyRequests,
					botapi.Fail(429, "Too Many Requests: retry after "+strconv.Itoa(retryAfter)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func tokenSegment(path string) string {
	rest := strings.TrimPrefix(path, "/bot")
	rest = strings.Trim(rest, "/")
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[:i]
	}
	return rest
}
