package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/chessstake/backend/internal/chessapi"
	"github.com/chessstake/backend/internal/metrics"
	"github.com/chessstake/backend/internal/models"
	"github.com/chessstake/backend/internal/notify"
	"github.com/chessstake/backend/internal/payment"
	"github.com/jmoiron/sqlx"
)

// Settler decides what a terminal result pays and executes it through the
// payment service. Amounts are always re-read from the challenge row; the
// poller is never trusted to carry them.
type Settler struct {
	db       *sqlx.DB
	payments *payment.Service
	notifier *notify.Notifier
}

func NewSettler(db *sqlx.DB, payments *payment.Service, notifier *notify.Notifier) *Settler {
	return &Settler{db: db, payments: payments, notifier: notifier}
}

// Settle applies a found game result to the match. Draw-classified results
// refund both players their stake; decisive results pay the winner double
// (their own stake plus the loser's).
func (s *Settler) Settle(ctx context.Context, m *models.OngoingMatch, game chessapi.Game) error {
	challenge, err := s.loadChallenge(m.ChallengeID)
	if err != nil {
		return err
	}

	if challenge.Status != models.ChallengeStatusDepositsComplete {
		log.Printf("[SETTLE] Challenge %d is %s, not deposits_complete - refusing to settle", challenge.ID, challenge.Status)
		return nil
	}

	outcome, known := Classify(game, m.ChallengerUsername)

	payload, _ := json.Marshal(map[string]interface{}{
		"game_url":     game.URL,
		"end_time":     game.EndTime,
		"white":        game.White,
		"black":        game.Black,
		"known_result": known,
	})

	var winnerID sql.NullInt64
	if outcome == OutcomeChallengerWins {
		winnerID = sql.NullInt64{Int64: int64(m.ChallengerID), Valid: true}
	} else if outcome == OutcomeOpponentWins {
		winnerID = sql.NullInt64{Int64: int64(m.OpponentID), Valid: true}
	}

	// Claim the match before moving any money. The conditional update is
	// what guarantees at-most-one settlement even if a timer and a manual
	// override race.
	if !s.claimMatch(m.ChallengeID, winnerID, string(payload)) {
		log.Printf("[SETTLE] Match for challenge %d already settled, skipping", m.ChallengeID)
		return nil
	}

	if challenge.StakeAmount <= 0 {
		log.Printf("[SETTLE] Challenge %d has no stake - resolved with no money movement", challenge.ID)
		metrics.SettlementsTotal.WithLabelValues("no_stake").Inc()
		s.completeChallenge(challenge.ID)
		return nil
	}

	switch outcome {
	case OutcomeChallengerWins, OutcomeOpponentWins:
		s.payWinner(ctx, challenge, m, outcome)
	default:
		s.refundBoth(ctx, challenge, m, "draw")
		metrics.SettlementsTotal.WithLabelValues("draw_refund").Inc()
	}

	s.completeChallenge(challenge.ID)
	return nil
}

// SettleManually applies an operator-decided outcome to a match whose result
// could not be resolved automatically, or was resolved wrongly. Same claim
// rules as Settle: a match settles at most once.
func (s *Settler) SettleManually(ctx context.Context, m *models.OngoingMatch, outcome Outcome, note string) error {
	challenge, err := s.loadChallenge(m.ChallengeID)
	if err != nil {
		return err
	}

	if challenge.Status != models.ChallengeStatusDepositsComplete {
		return fmt.Errorf("challenge %d is %s, not deposits_complete", challenge.ID, challenge.Status)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"outcome": outcome.Label(),
		"manual":  true,
		"note":    note,
	})

	var winnerID sql.NullInt64
	if outcome == OutcomeChallengerWins {
		winnerID = sql.NullInt64{Int64: int64(m.ChallengerID), Valid: true}
	} else if outcome == OutcomeOpponentWins {
		winnerID = sql.NullInt64{Int64: int64(m.OpponentID), Valid: true}
	}

	if !s.claimMatch(m.ChallengeID, winnerID, string(payload)) {
		return fmt.Errorf("match for challenge %d is already settled", m.ChallengeID)
	}

	log.Printf("[SETTLE] Manual settlement for challenge %d: %s (%s)", challenge.ID, outcome.Label(), note)

	if challenge.StakeAmount <= 0 {
		metrics.SettlementsTotal.WithLabelValues("no_stake").Inc()
		s.completeChallenge(challenge.ID)
		return nil
	}

	switch outcome {
	case OutcomeChallengerWins, OutcomeOpponentWins:
		s.payWinner(ctx, challenge, m, outcome)
	default:
		s.refundBoth(ctx, challenge, m, "manual_draw")
		metrics.SettlementsTotal.WithLabelValues("draw_refund").Inc()
	}

	s.completeChallenge(challenge.ID)
	return nil
}

func (s *Settler) payWinner(ctx context.Context, challenge *models.Challenge, m *models.OngoingMatch, outcome Outcome) {
	winnerID := m.ChallengerID
	if outcome == OutcomeOpponentWins {
		winnerID = m.OpponentID
	}

	winner, err := s.loadUser(winnerID)
	if err != nil {
		log.Printf("[SETTLE] Failed to load winner %d for challenge %d: %v", winnerID, challenge.ID, err)
		return
	}

	amount := challenge.StakeAmount * 2
	phone := s.phoneFor(challenge, winner)

	log.Printf("[SETTLE] Paying winner %d %.2f for challenge %d", winnerID, amount, challenge.ID)
	pay, _, err := s.payments.InitiateWithdrawal(ctx, winner, challenge, phone, amount, false)
	if err != nil {
		log.Printf("[SETTLE] Winner payout for challenge %d failed: %v", challenge.ID, err)
		metrics.SettlementsTotal.WithLabelValues("payout_failed").Inc()
		return
	}

	metrics.SettlementsTotal.WithLabelValues("winner_payout").Inc()
	channel := "provider"
	if pay.TransactionType == models.TxnTypeBalanceCredit {
		channel = "balance"
	}
	s.notifier.Publish(ctx, winnerID, notify.EventPaymentSuccess, map[string]interface{}{
		"challenge_id": challenge.ID,
		"amount":       amount,
		"kind":         "winnings",
		"channel":      channel,
	})
}

// refundBoth returns each player their own stake, routed per the payout
// threshold, and notifies both with the refund channel and amount.
func (s *Settler) refundBoth(ctx context.Context, challenge *models.Challenge, m *models.OngoingMatch, reason string) {
	for _, userID := range []int{m.ChallengerID, m.OpponentID} {
		user, err := s.loadUser(userID)
		if err != nil {
			log.Printf("[SETTLE] Failed to load user %d for refund on challenge %d: %v", userID, challenge.ID, err)
			continue
		}

		phone := s.phoneFor(challenge, user)
		_, _, err = s.payments.InitiateWithdrawal(ctx, user, challenge, phone, challenge.StakeAmount, true)
		if err != nil {
			log.Printf("[SETTLE] Refund to user %d for challenge %d failed: %v", userID, challenge.ID, err)
			continue
		}

		channel := "provider"
		if s.payments.UsesBalanceCredit(challenge.StakeAmount) {
			channel = "balance"
		}
		s.notifier.Publish(ctx, userID, notify.EventMatchRefunded, map[string]interface{}{
			"challenge_id": challenge.ID,
			"amount":       challenge.StakeAmount,
			"reason":       reason,
			"channel":      channel,
		})
	}
}

// claimMatch marks the match terminal. Returns false if it was already
// claimed by another path.
func (s *Settler) claimMatch(challengeID int, winnerID sql.NullInt64, payload string) bool {
	res, err := s.db.Exec(`
		UPDATE ongoing_matches
		SET result_checked = TRUE, winner_id = $1, result_payload = $2
		WHERE challenge_id = $3 AND result_checked = FALSE
	`, winnerID, payload, challengeID)
	if err != nil {
		log.Printf("[SETTLE] Failed to claim match for challenge %d: %v", challengeID, err)
		return false
	}
	rows, _ := res.RowsAffected()
	return rows == 1
}

func (s *Settler) completeChallenge(challengeID int) {
	_, err := s.db.Exec(`
		UPDATE challenges SET status=$1, completed_at=NOW() WHERE id=$2
	`, models.ChallengeStatusCompleted, challengeID)
	if err != nil {
		log.Printf("[SETTLE] Failed to complete challenge %d: %v", challengeID, err)
	}
}

func (s *Settler) loadChallenge(id int) (*models.Challenge, error) {
	var challenge models.Challenge
	if err := s.db.Get(&challenge, `SELECT * FROM challenges WHERE id=$1`, id); err != nil {
		return nil, fmt.Errorf("failed to load challenge %d: %w", id, err)
	}
	return &challenge, nil
}

func (s *Settler) loadUser(id int) (*models.User, error) {
	var user models.User
	if err := s.db.Get(&user, `SELECT * FROM users WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// phoneFor prefers the phone captured on the challenge at acceptance time
// over the user's current profile phone.
func (s *Settler) phoneFor(challenge *models.Challenge, user *models.User) string {
	if user.ID == challenge.ChallengerID && challenge.ChallengerPhone.Valid && challenge.ChallengerPhone.String != "" {
		return challenge.ChallengerPhone.String
	}
	if user.ID == challenge.OpponentID && challenge.OpponentPhone.Valid && challenge.OpponentPhone.String != "" {
		return challenge.OpponentPhone.String
	}
	return user.PhoneNumber
}
