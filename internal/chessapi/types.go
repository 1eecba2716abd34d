package chessapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PlayerProfile is the public profile record for a platform username.
type PlayerProfile struct {
	Username   string `json:"username"`
	PlayerID   int64  `json:"player_id"`
	Status     string `json:"status"`
	Joined     int64  `json:"joined"`
	LastOnline int64  `json:"last_online"`
}

// PlayerStats carries the per-mode rating blocks; only presence matters to
// us, so the blocks stay raw.
type PlayerStats struct {
	ChessRapid  json.RawMessage `json:"chess_rapid,omitempty"`
	ChessBlitz  json.RawMessage `json:"chess_blitz,omitempty"`
	ChessBullet json.RawMessage `json:"chess_bullet,omitempty"`
}

// GameSide is one color's entry in an archived game.
type GameSide struct {
	Username string `json:"username"`
	Result   string `json:"result"`
	Rating   int    `json:"rating"`
}

// Game is one finished game from a monthly archive.
type Game struct {
	URL         string   `json:"url"`
	EndTime     int64    `json:"end_time"`
	TimeControl string   `json:"time_control"`
	Rated       bool     `json:"rated"`
	White       GameSide `json:"white"`
	Black       GameSide `json:"black"`
}

// EndedAt returns the game's end time.
func (g Game) EndedAt() time.Time {
	return time.Unix(g.EndTime, 0)
}

// HasPlayers reports whether the game was played between the two usernames,
// in either color assignment.
func (g Game) HasPlayers(a, b string) bool {
	white := strings.EqualFold(g.White.Username, a) && strings.EqualFold(g.Black.Username, b)
	black := strings.EqualFold(g.White.Username, b) && strings.EqualFold(g.Black.Username, a)
	return white || black
}

// GetPlayerProfile fetches the public profile for a username.
func (c *Client) GetPlayerProfile(ctx context.Context, username string) (*PlayerProfile, error) {
	body, err := c.Request(ctx, "/pub/player/"+strings.ToLower(username), CategoryProfile)
	if err != nil {
		return nil, err
	}
	var profile PlayerProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// GetPlayerStats fetches the public stats for a username.
func (c *Client) GetPlayerStats(ctx context.Context, username string) (*PlayerStats, error) {
	body, err := c.Request(ctx, "/pub/player/"+strings.ToLower(username)+"/stats", CategoryStats)
	if err != nil {
		return nil, err
	}
	var stats PlayerStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// GetArchives fetches the list of monthly archive URLs for a username.
func (c *Client) GetArchives(ctx context.Context, username string) ([]string, error) {
	body, err := c.Request(ctx, "/pub/player/"+strings.ToLower(username)+"/games/archives", CategoryArchives)
	if err != nil {
		return nil, err
	}
	var archives struct {
		Archives []string `json:"archives"`
	}
	if err := json.Unmarshal(body, &archives); err != nil {
		return nil, fmt.Errorf("failed to decode archives: %w", err)
	}
	return archives.Archives, nil
}

// MonthlyGames fetches the finished games of the month containing t.
func (c *Client) MonthlyGames(ctx context.Context, username string, t time.Time) ([]Game, error) {
	path := fmt.Sprintf("/pub/player/%s/games/%04d/%02d", strings.ToLower(username), t.Year(), int(t.Month()))
	body, err := c.Request(ctx, path, CategoryGames)
	if err != nil {
		return nil, err
	}
	var month struct {
		Games []Game `json:"games"`
	}
	if err := json.Unmarshal(body, &month); err != nil {
		return nil, fmt.Errorf("failed to decode monthly games: %w", err)
	}
	return month.Games, nil
}
