package openrouter

import (
	"context"
	"sync"
	"time"

	"webstar/noturno-leadfinder-worker/internal/logging"
)

const (
	// DefaultMaxConcurrent is the default maximum concurrent requests to OpenRouter
	DefaultMaxConcurrent = 5
	// DefaultMinDelay is the minimum delay between requests (helps respect spend caps)
	DefaultMinDelay = 100 * time.Millisecond
)

var limiterLog = logging.New("OpenRouter RateLimiter")

// RateLimiter bounds concurrent OpenRouter calls with a semaphore and spaces
// consecutive calls by a minimum delay.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
	minDelay      time.Duration
	lastRequest   time.Time
	mu            sync.Mutex
}

// NewRateLimiter creates a limiter. Non-positive maxConcurrent uses the default, negative minDelay means none.
func NewRateLimiter(maxConcurrent int, minDelay time.Duration) *RateLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if minDelay < 0 {
		minDelay = 0
	}

	limiterLog.Info("Initialized", map[string]interface{}{
		"max_concurrent": maxConcurrent,
		"min_delay":      minDelay.String(),
	})

	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
		minDelay:      minDelay,
	}
}

// Acquire blocks until a slot is free and the minimum delay has passed, or ctx is done.
// The returned release func must be called when the request completes.
func (r *RateLimiter) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case r.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	if wait := r.minDelay - time.Since(r.lastRequest); r.minDelay > 0 && wait > 0 {
		r.mu.Unlock()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-r.semaphore
			return nil, ctx.Err()
		}
		r.mu.Lock()
	}
	r.lastRequest = time.Now()
	r.mu.Unlock()

	return func() { <-r.semaphore }, nil
}

// TryAcquire takes a slot without blocking, ignoring the minimum delay
func (r *RateLimiter) TryAcquire() (release func(), ok bool) {
	select {
	case r.semaphore <- struct{}{}:
		return func() { <-r.semaphore }, true
	default:
		return nil, false
	}
}

// CurrentUsage returns the number of slots currently in use
func (r *RateLimiter) CurrentUsage() int {
	return len(r.semaphore)
}

// MaxConcurrent returns the maximum concurrent requests allowed
func (r *RateLimiter) MaxConcurrent() int {
	return r.maxConcurrent
}
