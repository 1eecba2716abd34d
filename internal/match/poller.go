package match

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/chessstake/backend/internal/chessapi"
	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// resultRecencyWindow bounds how far back a finished game may be and still
// count as this match's result.
const resultRecencyWindow = 30 * time.Minute

// GamesAPI is the slice of the chess API client the poller needs.
type GamesAPI interface {
	MonthlyGames(ctx context.Context, username string, t time.Time) ([]chessapi.Game, error)
	CooldownRemaining() time.Duration
}

// Poller schedules per-match result checks. Each match owns one cancelable
// timer; all transitions are timer-driven, there is no polling loop.
type Poller struct {
	db       *sqlx.DB
	api      GamesAPI
	settler  *Settler
	interval time.Duration
	maxTries int

	mu     sync.Mutex
	timers map[int]*time.Timer
}

func NewPoller(db *sqlx.DB, api GamesAPI, settler *Settler, cfg *config.Config) *Poller {
	return &Poller{
		db:       db,
		api:      api,
		settler:  settler,
		interval: time.Duration(cfg.PollIntervalMinutes) * time.Minute,
		maxTries: cfg.MaxPollAttempts,
		timers:   make(map[int]*time.Timer),
	}
}

// Schedule registers the first result check for a freshly started match,
// delayed by the estimated game duration so the first API call has a chance
// of finding a finished game.
func (p *Poller) Schedule(m *models.OngoingMatch, timeControl string) {
	delay := EstimateDuration(timeControl)
	log.Printf("[POLLER] Scheduling first check for challenge %d in %v (time control %q)",
		m.ChallengeID, delay.Round(time.Second), timeControl)
	p.scheduleCheck(m, 1, delay)
}

// Cancel stops the match's pending timer. Safe to call after the timer
// fired: settlement claims are conditional, so a racing check can never
// settle twice.
func (p *Poller) Cancel(challengeID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timer, ok := p.timers[challengeID]; ok {
		timer.Stop()
		delete(p.timers, challengeID)
		log.Printf("[POLLER] Cancelled polling for challenge %d", challengeID)
	}
}

// ResumeUnchecked reschedules checks for matches that were in flight when
// the process last stopped.
func (p *Poller) ResumeUnchecked(ctx context.Context) {
	var matches []models.OngoingMatch
	err := p.db.Select(&matches, `SELECT * FROM ongoing_matches WHERE result_checked = FALSE`)
	if err != nil {
		log.Printf("[POLLER] Failed to load unchecked matches: %v", err)
		return
	}

	for i := range matches {
		m := matches[i]
		log.Printf("[POLLER] Resuming result polling for challenge %d", m.ChallengeID)
		p.scheduleCheck(&m, 1, p.interval)
	}
}

func (p *Poller) scheduleCheck(m *models.OngoingMatch, attempt int, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.timers[m.ChallengeID]; ok {
		old.Stop()
	}
	p.timers[m.ChallengeID] = time.AfterFunc(delay, func() {
		p.check(m, attempt)
	})
}

func (p *Poller) dropTimer(challengeID int) {
	p.mu.Lock()
	delete(p.timers, challengeID)
	p.mu.Unlock()
}

func (p *Poller) check(m *models.OngoingMatch, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Another path (manual override, restart) may have settled the match
	// while this timer was pending.
	var checked bool
	if err := p.db.Get(&checked, `SELECT result_checked FROM ongoing_matches WHERE challenge_id=$1`, m.ChallengeID); err != nil {
		log.Printf("[POLLER] Failed to refresh match for challenge %d: %v", m.ChallengeID, err)
		p.rescheduleOrGiveUp(ctx, m, attempt)
		return
	}
	if checked {
		p.dropTimer(m.ChallengeID)
		return
	}

	// During a cooldown, fire again exactly when it expires instead of
	// burning intermediate attempts.
	if cooldown := p.api.CooldownRemaining(); cooldown > 0 {
		log.Printf("[POLLER] Rate-limit cooldown active, pausing challenge %d for %v", m.ChallengeID, cooldown.Round(time.Second))
		p.scheduleCheck(m, attempt, cooldown)
		return
	}

	log.Printf("[POLLER] Checking result for challenge %d (attempt %d/%d)", m.ChallengeID, attempt, p.maxTries)

	game, found, err := p.findRecentGame(ctx, m)
	if errors.Is(err, chessapi.ErrRateLimited) {
		cooldown := p.api.CooldownRemaining()
		if cooldown <= 0 {
			cooldown = p.interval
		}
		log.Printf("[POLLER] Rate limited mid-check, pausing challenge %d for %v", m.ChallengeID, cooldown.Round(time.Second))
		p.scheduleCheck(m, attempt, cooldown)
		return
	}
	if err != nil {
		log.Printf("[POLLER] Result check failed for challenge %d: %v", m.ChallengeID, err)
		p.rescheduleOrGiveUp(ctx, m, attempt)
		return
	}

	if found {
		p.dropTimer(m.ChallengeID)
		log.Printf("[POLLER] ✓ Result found for challenge %d: %s", m.ChallengeID, game.URL)
		if err := p.settler.Settle(ctx, m, game); err != nil {
			log.Printf("[POLLER] Settlement failed for challenge %d: %v", m.ChallengeID, err)
		}
		return
	}

	p.rescheduleOrGiveUp(ctx, m, attempt)
}

func (p *Poller) rescheduleOrGiveUp(ctx context.Context, m *models.OngoingMatch, attempt int) {
	if attempt < p.maxTries {
		p.scheduleCheck(m, attempt+1, p.interval)
		return
	}

	p.dropTimer(m.ChallengeID)
	log.Printf("[POLLER] Attempts exhausted for challenge %d, triggering auto-refund", m.ChallengeID)
	if err := p.settler.AutoRefund(ctx, m); err != nil {
		log.Printf("[POLLER] Auto-refund failed for challenge %d: %v", m.ChallengeID, err)
	}
}

// findRecentGame looks for a finished game between the two usernames within
// the recency window, newest first. Around a month boundary the previous
// month's archive is consulted too.
func (p *Poller) findRecentGame(ctx context.Context, m *models.OngoingMatch) (chessapi.Game, bool, error) {
	now := time.Now()
	cutoff := now.Add(-resultRecencyWindow)

	months := []time.Time{now}
	if now.Day() == 1 && now.Sub(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())) < resultRecencyWindow {
		months = append(months, now.AddDate(0, -1, 0))
	}

	var candidates []chessapi.Game
	for _, month := range months {
		games, err := p.api.MonthlyGames(ctx, m.ChallengerUsername, month)
		if err != nil {
			return chessapi.Game{}, false, err
		}
		for _, g := range games {
			if g.HasPlayers(m.ChallengerUsername, m.OpponentUsername) && g.EndedAt().After(cutoff) {
				candidates = append(candidates, g)
			}
		}
	}

	if len(candidates) == 0 {
		return chessapi.Game{}, false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EndTime > candidates[j].EndTime
	})
	return candidates[0], true, nil
}
