// Package ratelimit paces outbound calls to the Twitch and Spotify APIs using the
// rate limit headers they return.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Twitch reports its budget in Ratelimit-*; Spotify only sends Retry-After on 429.
const (
	headerLimit      = "Ratelimit-Limit"
	headerRemaining  = "Ratelimit-Remaining"
	headerReset      = "Ratelimit-Reset"
	headerRetryAfter = "Retry-After"
)

// Bucket tracks the budget of one upstream API
type Bucket struct {
	Remaining int           // Requests remaining in current window
	Limit     int           // Total requests allowed per window
	ResetAt   time.Time     // When the window resets
	limiter   *rate.Limiter // Local smoothing between header updates
	mu        sync.Mutex
}

// RateLimiter manages one bucket per upstream
type RateLimiter struct {
	buckets      map[string]*Bucket
	mu           sync.RWMutex
	logger       *zap.Logger
	defaultEvery time.Duration
	defaultBurst int
}

// NewRateLimiter creates a rate limiter whose new buckets allow burst requests
// and then one request per every
func NewRateLimiter(logger *zap.Logger, every time.Duration, burst int) *RateLimiter {
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		buckets:      make(map[string]*Bucket),
		logger:       logger,
		defaultEvery: every,
		defaultBurst: burst,
	}
}

// getBucket retrieves or creates the bucket for an upstream
func (rl *RateLimiter) getBucket(name string) *Bucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[name]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, exists := rl.buckets[name]; exists {
		return bucket
	}

	bucket = &Bucket{
		Remaining: rl.defaultBurst,
		Limit:     rl.defaultBurst,
		ResetAt:   time.Now(),
		limiter:   rate.NewLimiter(rate.Every(rl.defaultEvery), rl.defaultBurst),
	}
	rl.buckets[name] = bucket
	return bucket
}

// Wait blocks until a request to the upstream may be sent or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, name string) error {
	bucket := rl.getBucket(name)

	bucket.mu.Lock()
	exhausted := bucket.Remaining <= 0 && time.Now().Before(bucket.ResetAt)
	resetAt := bucket.ResetAt
	limiter := bucket.limiter
	bucket.mu.Unlock()

	if exhausted {
		waitDuration := time.Until(resetAt)
		rl.logger.Warn("upstream rate limit exhausted, waiting",
			zap.String("bucket", name),
			zap.Duration("wait_duration", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter wait cancelled: %w", ctx.Err())
		}
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// UpdateFromHeaders refreshes a bucket from Ratelimit-* response headers
func (rl *RateLimiter) UpdateFromHeaders(name string, headers http.Header) {
	bucket := rl.getBucket(name)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	seen := false
	if val, err := strconv.Atoi(headers.Get(headerRemaining)); err == nil {
		bucket.Remaining = val
		seen = true
	}
	if val, err := strconv.Atoi(headers.Get(headerLimit)); err == nil && val > 0 {
		bucket.Limit = val
		seen = true
	}
	if val, err := strconv.ParseInt(headers.Get(headerReset), 10, 64); err == nil {
		bucket.ResetAt = time.Unix(val, 0)
		seen = true
	}

	if !seen {
		return
	}

	if resetDuration := time.Until(bucket.ResetAt); resetDuration > 0 && bucket.Limit > 0 {
		perSecond := float64(bucket.Limit) / resetDuration.Seconds()
		bucket.limiter.SetLimit(rate.Limit(perSecond))
		bucket.limiter.SetBurst(bucket.Limit)
	}

	rl.logger.Debug("updated rate limit from headers",
		zap.String("bucket", name),
		zap.Int("remaining", bucket.Remaining),
		zap.Int("limit", bucket.Limit),
		zap.Time("reset_at", bucket.ResetAt),
	)
}

// HandleRateLimitResponse records a 429 so the next Wait backs off
func (rl *RateLimiter) HandleRateLimitResponse(name string, headers http.Header) time.Duration {
	bucket := rl.getBucket(name)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	var retryAfter time.Duration
	if seconds, err := strconv.Atoi(headers.Get(headerRetryAfter)); err == nil {
		retryAfter = time.Duration(seconds) * time.Second
	}

	if retryAfter <= 0 {
		if val, err := strconv.ParseInt(headers.Get(headerReset), 10, 64); err == nil {
			retryAfter = time.Until(time.Unix(val, 0))
		}
	}

	if retryAfter <= 0 {
		retryAfter = 1 * time.Second
	}

	bucket.Remaining = 0
	bucket.ResetAt = time.Now().Add(retryAfter)

	rl.logger.Warn("rate limited by upstream",
		zap.String("bucket", name),
		zap.Duration("retry_after", retryAfter),
	)

	return retryAfter
}

// GetStatus returns the current budget of an upstream
func (rl *RateLimiter) GetStatus(name string) (remaining int, limit int, resetAt time.Time) {
	bucket := rl.getBucket(name)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Remaining, bucket.Limit, bucket.ResetAt
}

// Reset clears all buckets
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.buckets = make(map[string]*Bucket)
	rl.logger.Info("rate limiter reset")
}

// Transport wraps next so every request waits on the named bucket and every
// response updates it. A nil next uses http.DefaultTransport.
func (rl *RateLimiter) Transport(name string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &transport{limiter: rl, name: name, next: next}
}

type transport struct {
	limiter *RateLimiter
	name    string
	next    http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), t.name); err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	t.limiter.UpdateFromHeaders(t.name, resp.Header)
	if resp.StatusCode == http.StatusTooManyRequests {
		t.limiter.HandleRateLimitResponse(t.name, resp.Header)
	}

	return resp, nil
}
