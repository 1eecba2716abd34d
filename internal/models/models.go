package models

import (
	"database/sql"
	"time"
)

// Challenge status values
const (
	ChallengeStatusPending          = "pending"
	ChallengeStatusAccepted         = "accepted"
	ChallengeStatusDepositsComplete = "deposits_complete"
	ChallengeStatusCompleted        = "completed"
	ChallengeStatusCancelled        = "cancelled"
	ChallengeStatusPostponed        = "postponed"
)

// Challenge payment_status values
const (
	PaymentStatusNone      = "none"
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment transaction types
const (
	TxnTypeDeposit       = "deposit"
	TxnTypeWithdrawal    = "withdrawal"
	TxnTypePayout        = "payout"
	TxnTypeRefund        = "refund"
	TxnTypeBalanceCredit = "balance_credit"
	TxnTypeBet           = "bet"
	TxnTypeStake         = "stake"
)

// Payment status values. Transitions are monotone: pending may move to
// completed, failed or cancelled; nothing moves back to pending.
const (
	TxnStatusPending   = "pending"
	TxnStatusCompleted = "completed"
	TxnStatusFailed    = "failed"
	TxnStatusCancelled = "cancelled"
)

// User represents a registered player. Balance is only ever credited by the
// settlement paths; spending it belongs to the wallet flows outside this core.
type User struct {
	ID          int            `db:"id" json:"id"`
	PhoneNumber string         `db:"phone_number" json:"phone_number"`
	Username    sql.NullString `db:"username" json:"username,omitempty"`
	ChessComID  sql.NullString `db:"chesscom_username" json:"chesscom_username,omitempty"`
	LichessID   sql.NullString `db:"lichess_username" json:"lichess_username,omitempty"`
	Balance     float64        `db:"balance" json:"balance"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Challenge is a proposed wager between two users.
type Challenge struct {
	ID              int            `db:"id" json:"id"`
	ChallengerID    int            `db:"challenger_id" json:"challenger_id"`
	OpponentID      int            `db:"opponent_id" json:"opponent_id"`
	Platform        string         `db:"platform" json:"platform"`
	TimeControl     string         `db:"time_control" json:"time_control"`
	StakeAmount     float64        `db:"stake_amount" json:"stake_amount"`
	Status          string         `db:"status" json:"status"`
	PaymentStatus   string         `db:"payment_status" json:"payment_status"`
	ChallengerPhone sql.NullString `db:"challenger_phone" json:"challenger_phone,omitempty"`
	OpponentPhone   sql.NullString `db:"opponent_phone" json:"opponent_phone,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	AcceptedAt      sql.NullTime   `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt     sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
}

// Payment is one row per money movement attempt. RequestID is generated once
// at creation and is the correlation key for provider webhooks.
type Payment struct {
	ID              int            `db:"id" json:"id"`
	UserID          int            `db:"user_id" json:"user_id"`
	ChallengeID     sql.NullInt64  `db:"challenge_id" json:"challenge_id,omitempty"`
	OpponentID      sql.NullInt64  `db:"opponent_id" json:"opponent_id,omitempty"`
	PhoneNumber     string         `db:"phone_number" json:"phone_number"`
	Amount          float64        `db:"amount" json:"amount"`
	TransactionType string         `db:"transaction_type" json:"transaction_type"`
	Status          string         `db:"status" json:"status"`
	RequestID       string         `db:"request_id" json:"request_id"`
	ProviderTxnID   sql.NullString `db:"provider_txn_id" json:"provider_txn_id,omitempty"`
	CallbackPayload sql.NullString `db:"callback_payload" json:"callback_payload,omitempty"`
	Notes           sql.NullString `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	CompletedAt     sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
}

// OngoingMatch tracks a started match pending a result. Terminal once
// ResultChecked is true; nothing may touch winner/result after that.
type OngoingMatch struct {
	ID                 int            `db:"id" json:"id"`
	ChallengeID        int            `db:"challenge_id" json:"challenge_id"`
	ChallengerID       int            `db:"challenger_id" json:"challenger_id"`
	OpponentID         int            `db:"opponent_id" json:"opponent_id"`
	ChallengerUsername string         `db:"challenger_username" json:"challenger_username"`
	OpponentUsername   string         `db:"opponent_username" json:"opponent_username"`
	Platform           string         `db:"platform" json:"platform"`
	StartedAt          time.Time      `db:"started_at" json:"started_at"`
	ResultChecked      bool           `db:"result_checked" json:"result_checked"`
	WinnerID           sql.NullInt64  `db:"winner_id" json:"winner_id,omitempty"`
	ResultPayload      sql.NullString `db:"result_payload" json:"result_payload,omitempty"`
}

// Admin is an operator account for the manual settlement endpoints.
type Admin struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
