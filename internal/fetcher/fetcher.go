// Package fetcher issues single-attempt, rate-limited GET requests against public endpoints.
// Every completed call is followed by a jittered sleep so the aggregate request rate
// stays bounded regardless of outcome.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"webstar/noturno-leadfinder-worker/internal/logging"
)

const (
	DefaultMinDelay = 3 * time.Second
	DefaultMaxDelay = 8 * time.Second
	DefaultTimeout  = 15 * time.Second
	// MaxBodyBytes caps how much of a response is read into memory
	MaxBodyBytes = 5 << 20
)

// DefaultUserAgents is the client-identity pool rotated per call
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var fetchLog = logging.New("PoliteFetcher")

// Options controls a single fetch. Zero fields take the fetcher defaults.
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Timeout  time.Duration
	Headers  map[string]string
}

// Response is a successful (2xx) fetch result
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration)

// Fetcher performs polite GET requests
type Fetcher struct {
	client   *http.Client
	agents   []string
	limiter  *HostLimiter
	sleep    SleepFunc
	defaults Options

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgents replaces the client-identity pool
func WithUserAgents(agents []string) Option {
	return func(f *Fetcher) {
		if len(agents) > 0 {
			f.agents = agents
		}
	}
}

// WithHostLimiter adds a per-host token bucket checked before each call
func WithHostLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithSleep replaces the post-call sleep, mainly for tests
func WithSleep(s SleepFunc) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// WithRand seeds delay jitter and identity selection
func WithRand(r *rand.Rand) Option {
	return func(f *Fetcher) { f.rng = r }
}

// WithDefaults sets the delay window and timeout used when a call leaves them zero
func WithDefaults(o Options) Option {
	return func(f *Fetcher) {
		if o.MinDelay > 0 || o.MaxDelay > 0 {
			f.defaults.MinDelay = o.MinDelay
			f.defaults.MaxDelay = o.MaxDelay
		}
		if o.Timeout > 0 {
			f.defaults.Timeout = o.Timeout
		}
	}
}

// New creates a Fetcher
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{},
		agents: DefaultUserAgents,
		sleep:  contextSleep,
		defaults: Options{
			MinDelay: DefaultMinDelay,
			MaxDelay: DefaultMaxDelay,
			Timeout:  DefaultTimeout,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues one GET to rawURL. It never retries.
// Non-2xx statuses return a KindHTTP *FetchError, deadlines KindTimeout, anything else KindNetwork.
// Except after a timeout, it sleeps a uniform random interval in [MinDelay, MaxDelay] before returning.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	opts = f.withDefaults(opts)

	if f.limiter != nil {
		if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
			return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
		}
	}

	resp, err := f.do(ctx, rawURL, opts)
	if KindOf(err) == KindTimeout {
		fetchLog.Warn("Request timed out", map[string]interface{}{
			"url":     rawURL,
			"timeout": opts.Timeout.String(),
		})
		return nil, err
	}

	delay := f.jitter(opts.MinDelay, opts.MaxDelay)
	if err != nil {
		fetchLog.Warn("Request failed", map[string]interface{}{
			"url":   rawURL,
			"error": err.Error(),
			"sleep": delay.String(),
		})
	} else {
		fetchLog.Debug("Request completed", map[string]interface{}{
			"url":    rawURL,
			"status": resp.StatusCode,
			"bytes":  len(resp.Body),
			"sleep":  delay.String(),
		})
	}
	f.sleep(ctx, delay)

	return resp, err
}

func (f *Fetcher) do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.pickAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, callCtx, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, classify(ctx, callCtx, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: KindHTTP, URL: rawURL, Status: resp.StatusCode}
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// classify maps a transport error to a failure kind. Only the per-call deadline counts
// as a timeout; cancellation of the caller's context is reported as a network failure.
func classify(parent, call context.Context, rawURL string, err error) error {
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if parent.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
}

func (f *Fetcher) withDefaults(o Options) Options {
	if o.MinDelay == 0 && o.MaxDelay == 0 {
		o.MinDelay = f.defaults.MinDelay
		o.MaxDelay = f.defaults.MaxDelay
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = f.defaults.Timeout
	}
	return o
}

func (f *Fetcher) pickAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[f.rng.Intn(len(f.agents))]
}

// jitter returns a uniform duration in [min, max]
func (f *Fetcher) jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo + time.Duration(f.rng.Int63n(int64(hi-lo)+1))
}

func contextSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
