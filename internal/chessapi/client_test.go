package chessapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chessstake/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		ChessAPIBaseURL:          srv.URL,
		ChessAPIUserAgent:        "chessstake-test",
		RateLimitCooldownMinutes: 5,
	}
	return NewClient(ctx, cfg), srv
}

func TestRequestReturnsBody(t *testing.T) {
	var hits int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"games":[]}`))
	}))

	games, err := client.MonthlyGames(context.Background(), "Magnus", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, games)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestCachedResponseSkipsHTTP(t *testing.T) {
	var hits int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`{"username":"magnus","player_id":1}`))
	}))

	ctx := context.Background()
	_, err := client.GetPlayerProfile(ctx, "magnus")
	require.NoError(t, err)
	_, err = client.GetPlayerProfile(ctx, "magnus")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&hits), "second request should be served from cache")
}

func TestRateLimitOpensCooldown(t *testing.T) {
	var hits int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	ctx := context.Background()
	_, err := client.Request(ctx, "/pub/player/magnus", CategoryProfile)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
	assert.Greater(t, client.CooldownRemaining(), 4*time.Minute)

	// Every call during the cooldown fails without touching the network.
	for i := 0; i < 3; i++ {
		_, err = client.Request(ctx, "/pub/player/magnus", CategoryProfile)
		require.ErrorIs(t, err, ErrRateLimited)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestDelayAdaptation(t *testing.T) {
	client := &Client{minDelay: initialDelay, cache: make(map[string]cacheEntry)}

	// Five straight successes relax the delay by 5%.
	for i := 0; i < successesToRelax; i++ {
		client.onSuccess()
	}
	assert.Equal(t, time.Duration(float64(initialDelay)*0.95), client.minDelay)

	// A generic failure resets the streak and grows the delay 20% up to the cap.
	client.onFailure()
	assert.Equal(t, 0, client.successStreak)
	for i := 0; i < 20; i++ {
		client.onFailure()
	}
	assert.Equal(t, failureDelayCap, client.minDelay)

	// A rate limit doubles the delay, capped.
	client.cooldown = 5 * time.Minute
	client.tripRateLimit(http.StatusTooManyRequests)
	assert.Equal(t, rateLimitDelayCap, client.minDelay)
	assert.Greater(t, client.CooldownRemaining(), time.Duration(0))
}

func TestDelayFloor(t *testing.T) {
	client := &Client{minDelay: minDelayFloor, successStreak: successesToRelax}
	client.onSuccess()
	assert.Equal(t, minDelayFloor, client.minDelay)
}
