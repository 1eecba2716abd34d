package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/metrics"
	"github.com/chessstake/backend/internal/models"
	"github.com/chessstake/backend/internal/notify"
	"github.com/chessstake/backend/internal/payment"
	"github.com/go-co-op/gocron/v2"
	"github.com/jmoiron/sqlx"
)

// Sweeper is the backstop for challenges stuck in a partially- or fully-
// unpaid state: past the deadline it refunds whoever paid, cancels the
// challenge and its pending payment rows, and tells both players why.
type Sweeper struct {
	db       *sqlx.DB
	payments *payment.Service
	notifier *notify.Notifier
	timeout  time.Duration
}

func New(db *sqlx.DB, payments *payment.Service, notifier *notify.Notifier, cfg *config.Config) *Sweeper {
	return &Sweeper{
		db:       db,
		payments: payments,
		notifier: notifier,
		timeout:  time.Duration(cfg.PaymentTimeoutMinutes) * time.Minute,
	}
}

// Start schedules the periodic sweep. The scheduler shuts down when ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context, cfg *config.Config) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.sweep(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	sched.Start()
	log.Printf("[SWEEPER] Payment timeout sweeper started (every %v, deadline %v)", interval, s.timeout)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("[SWEEPER] Scheduler shutdown: %v", err)
		}
	}()
	return nil
}

type depositCounts struct {
	Completed int `db:"completed"`
	Pending   int `db:"pending"`
}

func (s *Sweeper) sweep(ctx context.Context) {
	var stale []models.Challenge
	err := s.db.Select(&stale, `
		SELECT * FROM challenges
		WHERE status = $1
		  AND stake_amount > 0
		  AND payment_status != $2
		  AND COALESCE(accepted_at, created_at) < NOW() - $3::interval
		ORDER BY id
	`, models.ChallengeStatusAccepted, models.PaymentStatusCompleted,
		fmt.Sprintf("%d minutes", int(s.timeout.Minutes())))
	if err != nil {
		log.Printf("[SWEEPER] Failed to fetch stale challenges: %v", err)
		return
	}

	if len(stale) == 0 {
		return
	}
	log.Printf("[SWEEPER] Sweeping %d stale challenge(s)", len(stale))

	for i := range stale {
		s.sweepChallenge(ctx, &stale[i])
	}
}

func (s *Sweeper) sweepChallenge(ctx context.Context, challenge *models.Challenge) {
	var counts depositCounts
	err := s.db.Get(&counts, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending
		FROM payments
		WHERE challenge_id = $1 AND transaction_type = 'deposit'
	`, challenge.ID)
	if err != nil {
		log.Printf("[SWEEPER] Failed to count deposits for challenge %d: %v", challenge.ID, err)
		return
	}

	switch {
	case counts.Completed >= 2:
		// Both paid but the reconciler's transition was missed; repair the
		// flag instead of cancelling a funded match.
		log.Printf("[SWEEPER] Challenge %d has both deposits but payment_status=%s - repairing", challenge.ID, challenge.PaymentStatus)
		_, err := s.db.Exec(`UPDATE challenges SET payment_status=$1 WHERE id=$2`,
			models.PaymentStatusCompleted, challenge.ID)
		if err != nil {
			log.Printf("[SWEEPER] Failed to repair challenge %d: %v", challenge.ID, err)
			return
		}
		metrics.SweeperActions.WithLabelValues("repaired").Inc()

	case counts.Completed == 1:
		s.refundAndCancel(ctx, challenge)

	default:
		s.cancelUnpaid(ctx, challenge)
	}
}

// refundAndCancel handles the one-player-paid case: the payer gets their
// stake back (provider payout above the threshold, balance credit below),
// then the challenge dies.
func (s *Sweeper) refundAndCancel(ctx context.Context, challenge *models.Challenge) {
	var paid models.Payment
	err := s.db.Get(&paid, `
		SELECT * FROM payments
		WHERE challenge_id = $1 AND transaction_type = 'deposit' AND status = 'completed'
		ORDER BY id LIMIT 1
	`, challenge.ID)
	if err != nil {
		log.Printf("[SWEEPER] Failed to load paid deposit for challenge %d: %v", challenge.ID, err)
		return
	}

	payer := &models.User{ID: paid.UserID, PhoneNumber: paid.PhoneNumber}
	_, _, err = s.payments.InitiateWithdrawal(ctx, payer, challenge, paid.PhoneNumber, paid.Amount, true)
	if err != nil {
		log.Printf("[SWEEPER] Refund to user %d for challenge %d failed: %v", paid.UserID, challenge.ID, err)
		// Leave the challenge for the next sweep rather than cancelling
		// with the player's money still held.
		return
	}

	s.cancelChallenge(challenge)
	metrics.SweeperActions.WithLabelValues("refunded_and_cancelled").Inc()
	log.Printf("[SWEEPER] ✓ Challenge %d cancelled, user %d refunded %.2f", challenge.ID, paid.UserID, paid.Amount)

	channel := "provider"
	if s.payments.UsesBalanceCredit(paid.Amount) {
		channel = "balance"
	}

	for _, userID := range []int{challenge.ChallengerID, challenge.OpponentID} {
		data := map[string]interface{}{
			"challenge_id": challenge.ID,
			"reason":       "opponent payment not received in time",
			"refunded":     userID == paid.UserID,
		}
		if userID == paid.UserID {
			data["amount"] = paid.Amount
			data["channel"] = channel
			data["reason"] = "opponent payment not received in time - your stake was refunded"
		}
		s.notifier.Publish(ctx, userID, notify.EventChallengeExpired, data)
	}
}

// cancelUnpaid handles the nobody-paid case: nothing was taken, so there is
// nothing to refund.
func (s *Sweeper) cancelUnpaid(ctx context.Context, challenge *models.Challenge) {
	s.cancelChallenge(challenge)
	metrics.SweeperActions.WithLabelValues("cancelled_unpaid").Inc()
	log.Printf("[SWEEPER] ✓ Challenge %d cancelled (no deposits received)", challenge.ID)

	for _, userID := range []int{challenge.ChallengerID, challenge.OpponentID} {
		s.notifier.Publish(ctx, userID, notify.EventChallengeExpired, map[string]interface{}{
			"challenge_id": challenge.ID,
			"reason":       "payments not received in time",
			"refunded":     false,
		})
	}
}

func (s *Sweeper) cancelChallenge(challenge *models.Challenge) {
	_, err := s.db.Exec(`UPDATE challenges SET status=$1, payment_status=$2 WHERE id=$3`,
		models.ChallengeStatusCancelled, models.PaymentStatusFailed, challenge.ID)
	if err != nil {
		log.Printf("[SWEEPER] Failed to cancel challenge %d: %v", challenge.ID, err)
	}

	// Stale pending deposit rows will never get a usable callback now.
	_, err = s.db.Exec(`
		UPDATE payments SET status=$1, notes='cancelled by payment timeout sweeper'
		WHERE challenge_id=$2 AND status='pending' AND transaction_type='deposit'
	`, models.TxnStatusCancelled, challenge.ID)
	if err != nil {
		log.Printf("[SWEEPER] Failed to cancel pending payments for challenge %d: %v", challenge.ID, err)
	}
}
