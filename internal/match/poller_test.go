package match

import (
	"context"
	"testing"
	"time"

	"github.com/chessstake/backend/internal/chessapi"
	"github.com/chessstake/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGamesAPI struct {
	games    []chessapi.Game
	err      error
	cooldown time.Duration
	calls    int
}

func (f *fakeGamesAPI) MonthlyGames(ctx context.Context, username string, t time.Time) ([]chessapi.Game, error) {
	f.calls++
	return f.games, f.err
}

func (f *fakeGamesAPI) CooldownRemaining() time.Duration { return f.cooldown }

func testMatch() *models.OngoingMatch {
	return &models.OngoingMatch{
		ChallengeID:        7,
		ChallengerID:       1,
		OpponentID:         2,
		ChallengerUsername: "alice",
		OpponentUsername:   "bob",
	}
}

func TestFindRecentGamePicksLatestBetweenPlayers(t *testing.T) {
	now := time.Now()
	api := &fakeGamesAPI{games: []chessapi.Game{
		{ // right players, older game inside the window
			EndTime: now.Add(-20 * time.Minute).Unix(),
			White:   chessapi.GameSide{Username: "alice", Result: "win"},
			Black:   chessapi.GameSide{Username: "bob", Result: "resigned"},
		},
		{ // wrong opponent
			EndTime: now.Add(-time.Minute).Unix(),
			White:   chessapi.GameSide{Username: "alice", Result: "win"},
			Black:   chessapi.GameSide{Username: "carol", Result: "resigned"},
		},
		{ // right players, newest
			EndTime: now.Add(-5 * time.Minute).Unix(),
			URL:     "https://example.com/game/latest",
			White:   chessapi.GameSide{Username: "bob", Result: "checkmated"},
			Black:   chessapi.GameSide{Username: "alice", Result: "win"},
		},
	}}

	p := &Poller{api: api}
	game, found, err := p.findRecentGame(context.Background(), testMatch())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/game/latest", game.URL)
}

func TestFindRecentGameIgnoresStaleGames(t *testing.T) {
	api := &fakeGamesAPI{games: []chessapi.Game{
		{
			EndTime: time.Now().Add(-2 * time.Hour).Unix(),
			White:   chessapi.GameSide{Username: "alice", Result: "win"},
			Black:   chessapi.GameSide{Username: "bob", Result: "resigned"},
		},
	}}

	p := &Poller{api: api}
	_, found, err := p.findRecentGame(context.Background(), testMatch())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindRecentGamePropagatesRateLimit(t *testing.T) {
	api := &fakeGamesAPI{err: chessapi.ErrRateLimited}

	p := &Poller{api: api}
	_, _, err := p.findRecentGame(context.Background(), testMatch())
	assert.ErrorIs(t, err, chessapi.ErrRateLimited)
}

func TestCancelIsSafeWithoutTimer(t *testing.T) {
	p := &Poller{timers: make(map[int]*time.Timer)}
	p.Cancel(42)
	p.Cancel(42)
}
