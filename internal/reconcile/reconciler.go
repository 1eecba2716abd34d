package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/chessstake/backend/internal/metrics"
	"github.com/chessstake/backend/internal/models"
	"github.com/chessstake/backend/internal/notify"
	"github.com/jmoiron/sqlx"
)

// Outcome of processing one webhook. Everything except OutcomeError is
// reported to the provider as success so it never retries forever.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeNoCorrelation Outcome = "no_correlation"
	OutcomeUnknownID     Outcome = "unknown_or_processed"
	OutcomeTransient     Outcome = "still_processing"
	OutcomeError         Outcome = "error"
)

// Scheduler is the slice of the match poller the reconciler needs when both
// deposits clear.
type Scheduler interface {
	Schedule(m *models.OngoingMatch, timeControl string)
}

// Reconciler applies asynchronous payment-status webhooks to Payment rows.
type Reconciler struct {
	db       *sqlx.DB
	notifier *notify.Notifier
	poller   Scheduler
}

func NewReconciler(db *sqlx.DB, notifier *notify.Notifier, poller Scheduler) *Reconciler {
	return &Reconciler{db: db, notifier: notifier, poller: poller}
}

// ProcessCallback reconciles one webhook body. Idempotent: the same payload
// applied twice changes payment state at most once; the second application
// is a no-op.
func (r *Reconciler) ProcessCallback(ctx context.Context, raw []byte) (Outcome, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Unparseable body: nothing to correlate, nothing to retry.
		log.Printf("[WEBHOOK] Unparseable callback body: %v", err)
		metrics.WebhooksProcessed.WithLabelValues(string(OutcomeNoCorrelation)).Inc()
		return OutcomeNoCorrelation, nil
	}

	requestID := ExtractRequestID(&payload)
	if requestID == "" {
		log.Printf("[WEBHOOK] No correlation id recoverable from callback (message=%q)", payload.Message)
		metrics.WebhooksProcessed.WithLabelValues(string(OutcomeNoCorrelation)).Inc()
		return OutcomeNoCorrelation, nil
	}

	status := MapStatus(&payload)
	log.Printf("[WEBHOOK] Callback for request_id=%s: status=%s code=%s ref=%s",
		requestID, status, payload.StatusCode, payload.TransactionRef)

	if status == StatusProcessing {
		// Transient provider state; the row stays pending and the next
		// callback (or the sweeper) decides.
		metrics.WebhooksProcessed.WithLabelValues(string(OutcomeTransient)).Inc()
		return OutcomeTransient, nil
	}

	payment, applied, err := r.applyStatus(requestID, status, payload.TransactionRef, raw)
	if err != nil {
		metrics.WebhooksProcessed.WithLabelValues(string(OutcomeError)).Inc()
		return OutcomeError, err
	}
	if !applied {
		// Already processed, or an id we never issued. Success either way.
		log.Printf("[WEBHOOK] No pending payment for request_id=%s, no-op", requestID)
		metrics.WebhooksProcessed.WithLabelValues(string(OutcomeUnknownID)).Inc()
		return OutcomeUnknownID, nil
	}

	metrics.WebhooksProcessed.WithLabelValues(string(OutcomeApplied)).Inc()

	if payment.TransactionType == models.TxnTypeDeposit {
		if status == StatusCompleted {
			r.onDepositCompleted(ctx, payment)
		} else {
			r.onDepositFailed(ctx, payment, &payload)
		}
	}

	return OutcomeApplied, nil
}

// applyStatus is the single conditional UPDATE that enforces per-payment
// idempotency. Zero rows affected means already processed or unknown id.
func (r *Reconciler) applyStatus(requestID, status, providerRef string, raw []byte) (*models.Payment, bool, error) {
	var payment models.Payment
	err := r.db.QueryRowx(`
		UPDATE payments
		SET status = $1,
		    provider_txn_id = COALESCE(NULLIF($2, ''), provider_txn_id),
		    callback_payload = $3,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
		WHERE request_id = $4 AND status = 'pending'
		RETURNING id, user_id, challenge_id, opponent_id, phone_number, amount, transaction_type, status, request_id
	`, status, providerRef, string(raw), requestID).Scan(
		&payment.ID, &payment.UserID, &payment.ChallengeID, &payment.OpponentID,
		&payment.PhoneNumber, &payment.Amount, &payment.TransactionType,
		&payment.Status, &payment.RequestID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply callback for request_id=%s: %w", requestID, err)
	}
	return &payment, true, nil
}

// onDepositCompleted checks whether both players' stakes have now cleared
// and, if so, advances the challenge and starts result polling.
func (r *Reconciler) onDepositCompleted(ctx context.Context, payment *models.Payment) {
	r.notifier.Publish(ctx, payment.UserID, notify.EventPaymentSuccess, map[string]interface{}{
		"amount": payment.Amount,
		"kind":   "deposit",
	})

	if !payment.ChallengeID.Valid {
		return
	}
	challengeID := int(payment.ChallengeID.Int64)

	var completedDeposits int
	err := r.db.Get(&completedDeposits, `
		SELECT COUNT(*) FROM payments
		WHERE challenge_id = $1 AND transaction_type = 'deposit' AND status = 'completed'
	`, challengeID)
	if err != nil {
		log.Printf("[WEBHOOK] Failed to count deposits for challenge %d: %v", challengeID, err)
		return
	}

	if completedDeposits < 2 {
		log.Printf("[WEBHOOK] Challenge %d has %d/2 deposits complete", challengeID, completedDeposits)
		return
	}

	// Conditional so a racing webhook for the other deposit can't start the
	// match twice.
	res, err := r.db.Exec(`
		UPDATE challenges
		SET status = $1, payment_status = $2
		WHERE id = $3 AND status = $4
	`, models.ChallengeStatusDepositsComplete, models.PaymentStatusCompleted,
		challengeID, models.ChallengeStatusAccepted)
	if err != nil {
		log.Printf("[WEBHOOK] Failed to advance challenge %d: %v", challengeID, err)
		return
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		log.Printf("[WEBHOOK] Challenge %d already advanced, skipping match start", challengeID)
		return
	}

	log.Printf("[WEBHOOK] ✓ Both deposits complete for challenge %d - starting match", challengeID)
	r.startMatch(ctx, challengeID)
}

func (r *Reconciler) startMatch(ctx context.Context, challengeID int) {
	var challenge models.Challenge
	if err := r.db.Get(&challenge, `SELECT * FROM challenges WHERE id=$1`, challengeID); err != nil {
		log.Printf("[WEBHOOK] Failed to load challenge %d: %v", challengeID, err)
		return
	}

	challengerName, err := r.platformUsername(challenge.ChallengerID, challenge.Platform)
	if err != nil {
		log.Printf("[WEBHOOK] No %s username for user %d: %v", challenge.Platform, challenge.ChallengerID, err)
		return
	}
	opponentName, err := r.platformUsername(challenge.OpponentID, challenge.Platform)
	if err != nil {
		log.Printf("[WEBHOOK] No %s username for user %d: %v", challenge.Platform, challenge.OpponentID, err)
		return
	}

	m := models.OngoingMatch{
		ChallengeID:        challengeID,
		ChallengerID:       challenge.ChallengerID,
		OpponentID:         challenge.OpponentID,
		ChallengerUsername: challengerName,
		OpponentUsername:   opponentName,
		Platform:           challenge.Platform,
	}

	err = r.db.QueryRowx(`
		INSERT INTO ongoing_matches (challenge_id, challenger_id, opponent_id, challenger_username, opponent_username, platform, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (challenge_id) DO NOTHING
		RETURNING id, started_at
	`, m.ChallengeID, m.ChallengerID, m.OpponentID, m.ChallengerUsername, m.OpponentUsername, m.Platform,
	).Scan(&m.ID, &m.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[WEBHOOK] Ongoing match for challenge %d already exists", challengeID)
		return
	}
	if err != nil {
		log.Printf("[WEBHOOK] Failed to create ongoing match for challenge %d: %v", challengeID, err)
		return
	}

	for _, userID := range []int{challenge.ChallengerID, challenge.OpponentID} {
		r.notifier.Publish(ctx, userID, notify.EventDepositsComplete, map[string]interface{}{
			"challenge_id": challengeID,
			"platform":     challenge.Platform,
			"time_control": challenge.TimeControl,
			"stake":        challenge.StakeAmount,
			"challenger":   challengerName,
			"opponent":     opponentName,
		})
	}

	r.poller.Schedule(&m, challenge.TimeControl)
}

func (r *Reconciler) onDepositFailed(ctx context.Context, payment *models.Payment, payload *CallbackPayload) {
	raw := FailureReason(payload)
	r.notifier.Publish(ctx, payment.UserID, notify.EventPaymentFailed, map[string]interface{}{
		"amount":      payment.Amount,
		"message":     notify.FriendlyPaymentMessage(raw),
		"raw_message": raw,
	})
}

func (r *Reconciler) platformUsername(userID int, platform string) (string, error) {
	var user models.User
	if err := r.db.Get(&user, `SELECT * FROM users WHERE id=$1`, userID); err != nil {
		return "", err
	}

	var name sql.NullString
	switch platform {
	case "lichess":
		name = user.LichessID
	default:
		name = user.ChessComID
	}
	if !name.Valid || name.String == "" {
		// Fall back to the display username rather than refusing to start.
		if user.Username.Valid && user.Username.String != "" {
			return user.Username.String, nil
		}
		return "", fmt.Errorf("user %d has no %s username", userID, platform)
	}
	return name.String, nil
}
