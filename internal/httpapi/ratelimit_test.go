package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketBurstThenRefill(t *testing.T) {
	tb := NewTokenBucket(3, 1000) // large refill so the retry window is tiny

	for i := 0; i < 3; i++ {
		if ok, _ := tb.Allow(); !ok {
			t.Fatalf("burst request %d denied", i)
		}
	}
	ok, wait := tb.Allow()
	if ok {
		t.Fatal("bucket should be empty")
	}
	if wait <= 0 {
		t.Fatal("wait time should be positive")
	}

	time.Sleep(5 * time.Millisecond)
	if ok, _ := tb.Allow(); !ok {
		t.Fatal("bucket should refill")
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(RateLimitInfo{WindowSeconds: 60, MaxRequests: 60, Burst: 1})

	if ok, _ := rl.Allow("token-a"); !ok {
		t.Fatal("first request for a should pass")
	}
	if ok, _ := rl.Allow("token-a"); ok {
		t.Fatal("second request for a should be limited")
	}
	if ok, _ := rl.Allow("token-b"); !ok {
		t.Fatal("b must not share a's bucket")
	}
}

func TestRateLimitMiddlewareReturns429Envelope(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitInfo{WindowSeconds: 60, MaxRequests: 60, Burst: 1})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/bot123:abc/getMe", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request blocked: %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest("GET", "/bot123:abc/getMe", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestTokenSegment(t *testing.T) {
	cases := map[string]string{
		"/bot123:abc/getMe": "123:abc",
		"/bot123:abc":       "123:abc",
		"/bot":              "",
	}
	for in, want := range cases {
		if got := tokenSegment(in); got != want {
			t.Fatalf("tokenSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
