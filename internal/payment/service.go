package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/metrics"
	"github.com/chessstake/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrInvalidArgument marks validation failures rejected before any provider
// call or DB write.
var ErrInvalidArgument = errors.New("invalid argument")

// Service drives deposits, payouts and refunds. A pending Payment row is
// always written before the provider is called, so a crash mid-call still
// leaves a traceable record for reconciliation.
type Service struct {
	db        *sqlx.DB
	gateway   *Gateway
	queue     *Queue
	minPayout float64
}

// NewService wires the service and starts its serialized provider-call queue.
func NewService(ctx context.Context, db *sqlx.DB, gateway *Gateway, cfg *config.Config) *Service {
	return &Service{
		db:        db,
		gateway:   gateway,
		queue:     NewQueue(ctx, 128),
		minPayout: cfg.MinPayoutAmount,
	}
}

// MinPayout is the threshold below which money moves via balance credit
// instead of the provider.
func (s *Service) MinPayout() float64 {
	return s.minPayout
}

// UsesBalanceCredit reports whether the given amount is routed to the
// balance-credit path (true) or through the provider (false).
func (s *Service) UsesBalanceCredit(amount float64) bool {
	return amount < s.minPayout
}

// InitiateDeposit normalizes the phone, records a pending deposit Payment
// with a fresh request_id, then issues the STK push through the serialized
// queue. Provider failures are captured on the row, never panicked.
func (s *Service) InitiateDeposit(ctx context.Context, user *models.User, challenge *models.Challenge, phone string, amount float64) (*models.Payment, *ProviderResponse, error) {
	if err := validateAmount(amount); err != nil {
		return nil, nil, err
	}
	details, err := NormalizePhoneNumber(phone)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	payment, err := s.createPayment(user.ID, challenge, details.NormalizedNumber, amount, models.TxnTypeDeposit)
	if err != nil {
		return nil, nil, err
	}

	var provResp *ProviderResponse
	var provErr error
	queueErr := s.queue.Do(ctx, func() {
		provResp, provErr = s.gateway.Deposit(ctx, DepositRequest{
			Phone:       details.NormalizedNumber,
			Amount:      amount,
			RequestID:   payment.RequestID,
			Description: fmt.Sprintf("ChessStake deposit for challenge %d", challenge.ID),
		})
	})
	if queueErr != nil {
		provErr = queueErr
	}

	if provErr != nil {
		metrics.ProviderCalls.WithLabelValues("deposit", "error").Inc()
		log.Printf("[PAYMENT] Deposit failed for payment %d: %v", payment.ID, provErr)
		s.markPaymentFailed(payment, provErr.Error())
		return payment, provResp, fmt.Errorf("deposit initiation failed: %w", provErr)
	}

	metrics.ProviderCalls.WithLabelValues("deposit", "ok").Inc()
	s.setProviderTxnID(payment, provResp.TransactionID)
	return payment, provResp, nil
}

// InitiateWithdrawal pays money out to a player. Amounts under the minimum
// payout threshold never touch the provider: they are credited to the
// player's balance atomically with an already-completed Payment row, which
// avoids provider fees and friction on small amounts.
func (s *Service) InitiateWithdrawal(ctx context.Context, user *models.User, challenge *models.Challenge, phone string, amount float64, isRefund bool) (*models.Payment, *ProviderResponse, error) {
	if err := validateAmount(amount); err != nil {
		return nil, nil, err
	}

	if s.UsesBalanceCredit(amount) {
		payment, err := s.creditBalance(user.ID, challenge, amount, isRefund)
		return payment, nil, err
	}

	details, err := NormalizePhoneNumber(phone)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	txnType := models.TxnTypePayout
	if isRefund {
		txnType = models.TxnTypeRefund
	}

	payment, err := s.createPayment(user.ID, challenge, details.NormalizedNumber, amount, txnType)
	if err != nil {
		return nil, nil, err
	}

	var provResp *ProviderResponse
	var provErr error
	queueErr := s.queue.Do(ctx, func() {
		provResp, provErr = s.gateway.Withdraw(ctx, WithdrawRequest{
			Phone:       details.NormalizedNumber,
			Amount:      amount,
			RequestID:   payment.RequestID,
			Description: fmt.Sprintf("ChessStake %s for challenge %d", txnType, challenge.ID),
		})
	})
	if queueErr != nil {
		provErr = queueErr
	}

	if provErr != nil {
		metrics.ProviderCalls.WithLabelValues("withdraw", "error").Inc()
		log.Printf("[PAYMENT] %s failed for payment %d: %v", txnType, payment.ID, provErr)
		s.markPaymentFailed(payment, provErr.Error())
		return payment, provResp, fmt.Errorf("%s initiation failed: %w", txnType, provErr)
	}

	metrics.ProviderCalls.WithLabelValues("withdraw", "ok").Inc()
	s.setProviderTxnID(payment, provResp.TransactionID)
	return payment, provResp, nil
}

func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%w: amount %v", ErrInvalidArgument, amount)
	}
	return nil
}

func (s *Service) createPayment(userID int, challenge *models.Challenge, phone string, amount float64, txnType string) (*models.Payment, error) {
	payment := &models.Payment{
		UserID:          userID,
		PhoneNumber:     phone,
		Amount:          amount,
		TransactionType: txnType,
		Status:          models.TxnStatusPending,
		RequestID:       NewRequestID(),
	}
	if challenge != nil {
		payment.ChallengeID = sql.NullInt64{Int64: int64(challenge.ID), Valid: true}
		opponent := challenge.OpponentID
		if userID == challenge.OpponentID {
			opponent = challenge.ChallengerID
		}
		payment.OpponentID = sql.NullInt64{Int64: int64(opponent), Valid: true}
	}

	err := s.db.QueryRowx(`
		INSERT INTO payments (user_id, challenge_id, opponent_id, phone_number, amount, transaction_type, status, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`, payment.UserID, payment.ChallengeID, payment.OpponentID, payment.PhoneNumber,
		payment.Amount, payment.TransactionType, payment.Status, payment.RequestID,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment row: %w", err)
	}

	return payment, nil
}

// creditBalance credits the user's in-app balance and inserts the matching
// already-completed Payment row in one transaction.
func (s *Service) creditBalance(userID int, challenge *models.Challenge, amount float64, isRefund bool) (*models.Payment, error) {
	txnType := models.TxnTypeBalanceCredit
	if isRefund {
		txnType = models.TxnTypeRefund
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var phone string
	if err := tx.Get(&phone, `SELECT phone_number FROM users WHERE id=$1`, userID); err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	if _, err := tx.Exec(`UPDATE users SET balance = balance + $1 WHERE id = $2`, amount, userID); err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}

	payment := &models.Payment{
		UserID:          userID,
		PhoneNumber:     phone,
		Amount:          amount,
		TransactionType: txnType,
		Status:          models.TxnStatusCompleted,
		RequestID:       NewRequestID(),
		Notes:           sql.NullString{String: "below payout threshold - credited to balance", Valid: true},
	}
	if challenge != nil {
		payment.ChallengeID = sql.NullInt64{Int64: int64(challenge.ID), Valid: true}
	}

	err = tx.QueryRowx(`
		INSERT INTO payments (user_id, challenge_id, phone_number, amount, transaction_type, status, request_id, notes, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at
	`, payment.UserID, payment.ChallengeID, payment.PhoneNumber, payment.Amount,
		payment.TransactionType, payment.Status, payment.RequestID, payment.Notes,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance credit row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit balance credit: %w", err)
	}

	log.Printf("[PAYMENT] ✓ Credited %.2f to user %d balance (%s, below %.2f threshold)", amount, userID, txnType, s.minPayout)
	return payment, nil
}

func (s *Service) markPaymentFailed(payment *models.Payment, notes string) {
	payment.Status = models.TxnStatusFailed
	payment.Notes = sql.NullString{String: notes, Valid: true}
	_, err := s.db.Exec(`
		UPDATE payments SET status=$1, notes=$2
		WHERE id=$3 AND status='pending'
	`, models.TxnStatusFailed, notes, payment.ID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to mark payment %d failed: %v", payment.ID, err)
	}
}

func (s *Service) setProviderTxnID(payment *models.Payment, providerTxnID string) {
	if providerTxnID == "" {
		return
	}
	payment.ProviderTxnID = sql.NullString{String: providerTxnID, Valid: true}
	_, err := s.db.Exec(`UPDATE payments SET provider_txn_id=$1 WHERE id=$2`, providerTxnID, payment.ID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to store provider txn id for payment %d: %v", payment.ID, err)
	}
}
