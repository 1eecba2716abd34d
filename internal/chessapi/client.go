package chessapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/metrics"
)

// ErrRateLimited is returned for every request while a cooldown is active.
// Callers are expected to back off until CooldownRemaining elapses instead
// of retrying immediately.
var ErrRateLimited = errors.New("chess api rate limited")

// Cache categories with distinct TTLs. Player profile and stats barely
// change; the monthly game list is what the poller watches, so it stays
// fresh.
type Category string

const (
	CategoryProfile  Category = "profile"
	CategoryStats    Category = "stats"
	CategoryArchives Category = "archives"
	CategoryGames    Category = "games"
)

var cacheTTLs = map[Category]time.Duration{
	CategoryProfile:  15 * time.Minute,
	CategoryStats:    15 * time.Minute,
	CategoryArchives: 10 * time.Minute,
	CategoryGames:    90 * time.Second,
}

const (
	initialDelay      = 2 * time.Second
	minDelayFloor     = 1500 * time.Millisecond
	failureDelayCap   = 5 * time.Second
	rateLimitDelayCap = 10 * time.Second
	successesToRelax  = 5
	cacheSweepPeriod  = time.Minute
	queueCapacity     = 64
)

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

type apiResult struct {
	body []byte
	err  error
}

type apiRequest struct {
	ctx      context.Context
	path     string
	category Category
	resp     chan apiResult
}

// Client serializes all outbound calls to the chess platform's public API
// behind a single FIFO so a burst of pollers can never trip the platform's
// rate limiter on its own. One instance per process, passed by handle.
type Client struct {
	baseURL    string
	userAgent  string
	cooldown   time.Duration
	httpClient *http.Client

	queue chan *apiRequest

	mu            sync.Mutex
	minDelay      time.Duration
	successStreak int
	cooldownUntil time.Time
	lastDispatch  time.Time
	cache         map[string]cacheEntry
}

// NewClient constructs the client and starts its dispatch worker and cache
// sweeper. The worker stops when ctx is cancelled.
func NewClient(ctx context.Context, cfg *config.Config) *Client {
	c := &Client{
		baseURL:    cfg.ChessAPIBaseURL,
		userAgent:  cfg.ChessAPIUserAgent,
		cooldown:   time.Duration(cfg.RateLimitCooldownMinutes) * time.Minute,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		queue:      make(chan *apiRequest, queueCapacity),
		minDelay:   initialDelay,
		cache:      make(map[string]cacheEntry),
	}

	go c.dispatchLoop(ctx)
	go c.sweepLoop(ctx)

	return c
}

// CooldownRemaining reports how long the active rate-limit window has left,
// or zero when requests are allowed. The poller uses this to reschedule a
// check to fire exactly when the window expires.
func (c *Client) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining := time.Until(c.cooldownUntil); remaining > 0 {
		return remaining
	}
	return 0
}

// Request performs a GET against the given API path, serialized behind any
// previously queued calls. Responses are cached per (category, path).
func (c *Client) Request(ctx context.Context, path string, category Category) ([]byte, error) {
	if c.CooldownRemaining() > 0 {
		return nil, ErrRateLimited
	}

	if body, ok := c.cachedResponse(category, path); ok {
		metrics.ChessAPICacheHits.WithLabelValues("hit").Inc()
		return body, nil
	}
	metrics.ChessAPICacheHits.WithLabelValues("miss").Inc()

	req := &apiRequest{ctx: ctx, path: path, category: category, resp: make(chan apiResult, 1)}

	select {
	case c.queue <- req:
	default:
		return nil, fmt.Errorf("chess api queue full")
	}

	select {
	case res := <-req.resp:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) cachedResponse(category Category, path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[string(category)+":"+path]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.body, true
}

func (c *Client) storeResponse(category Category, path string, body []byte) {
	ttl, ok := cacheTTLs[category]
	if !ok {
		return
	}
	c.mu.Lock()
	c.cache[string(category)+":"+path] = cacheEntry{body: body, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Client) dispatchLoop(ctx context.Context) {
	log.Printf("[CHESS-API] Dispatch worker started (base=%s initial_delay=%v)", c.baseURL, initialDelay)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[CHESS-API] Dispatch worker stopped")
			return
		case req := <-c.queue:
			c.dispatch(ctx, req)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, req *apiRequest) {
	// Requests enqueued just before a cooldown started are rejected here.
	if c.CooldownRemaining() > 0 {
		req.resp <- apiResult{err: ErrRateLimited}
		return
	}

	if !c.waitForSlot(ctx, req) {
		return
	}

	body, status, err := c.doGet(req.ctx, req.path)

	switch {
	case err == nil && status == http.StatusOK:
		c.onSuccess()
		c.storeResponse(req.category, req.path, body)
		req.resp <- apiResult{body: body}
	case status == http.StatusTooManyRequests || status == http.StatusGone:
		c.tripRateLimit(status)
		req.resp <- apiResult{err: ErrRateLimited}
		c.rejectQueued()
	default:
		c.onFailure()
		if err == nil {
			err = fmt.Errorf("chess api responded %d for %s", status, req.path)
		}
		req.resp <- apiResult{err: err}
	}
}

// waitForSlot sleeps until the rolling minimum inter-request delay is
// satisfied. Returns false if the request's context expired while waiting.
func (c *Client) waitForSlot(ctx context.Context, req *apiRequest) bool {
	c.mu.Lock()
	wait := c.minDelay - time.Since(c.lastDispatch)
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-req.ctx.Done():
			req.resp <- apiResult{err: req.ctx.Err()}
			return false
		case <-ctx.Done():
			req.resp <- apiResult{err: ctx.Err()}
			return false
		}
	}

	c.mu.Lock()
	c.lastDispatch = time.Now()
	c.mu.Unlock()
	return true
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("chess api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func (c *Client) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successStreak++
	if c.successStreak >= successesToRelax {
		relaxed := time.Duration(float64(c.minDelay) * 0.95)
		if relaxed < minDelayFloor {
			relaxed = minDelayFloor
		}
		c.minDelay = relaxed
	}
}

func (c *Client) onFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successStreak = 0
	increased := time.Duration(float64(c.minDelay) * 1.2)
	if increased > failureDelayCap {
		increased = failureDelayCap
	}
	c.minDelay = increased
}

func (c *Client) tripRateLimit(status int) {
	c.mu.Lock()
	c.successStreak = 0
	c.cooldownUntil = time.Now().Add(c.cooldown)
	doubled := c.minDelay * 2
	if doubled > rateLimitDelayCap {
		doubled = rateLimitDelayCap
	}
	c.minDelay = doubled
	until := c.cooldownUntil
	delay := c.minDelay
	c.mu.Unlock()

	metrics.RateLimitTrips.Inc()
	log.Printf("[CHESS-API] Rate limited (status=%d), cooling down until %s, delay now %v",
		status, until.Format(time.RFC3339), delay)
}

// rejectQueued fails every request that was queued before the cooldown
// started. They would only burn the window down further.
func (c *Client) rejectQueued() {
	for {
		select {
		case queued := <-c.queue:
			queued.resp <- apiResult{err: ErrRateLimited}
		default:
			return
		}
	}
}

func (c *Client) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.cache {
				if now.After(entry.expiresAt) {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
