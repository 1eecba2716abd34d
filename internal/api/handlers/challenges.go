package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/chessstake/backend/internal/models"
	"github.com/chessstake/backend/internal/payment"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// CreateChallenge records a proposed wager between two players. The
// challenger's payout phone is captured here; the opponent's at acceptance.
func CreateChallenge(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ChallengerID int     `json:"challenger_id" binding:"required"`
			OpponentID   int     `json:"opponent_id" binding:"required"`
			Platform     string  `json:"platform"`
			TimeControl  string  `json:"time_control" binding:"required"`
			StakeAmount  float64 `json:"stake_amount"`
			Phone        string  `json:"phone"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		if req.Platform == "" {
			req.Platform = "chesscom"
		}
		if req.Platform != "chesscom" && req.Platform != "lichess" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Platform must be chesscom or lichess"})
			return
		}
		if req.ChallengerID == req.OpponentID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot challenge yourself"})
			return
		}
		if req.StakeAmount < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stake amount cannot be negative"})
			return
		}

		var challengerPhone sql.NullString
		if req.Phone != "" {
			details, err := payment.NormalizePhoneNumber(req.Phone)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
				return
			}
			challengerPhone = sql.NullString{String: details.NormalizedNumber, Valid: true}
		}

		var challenge models.Challenge
		err := db.Get(&challenge, `
			INSERT INTO challenges (challenger_id, opponent_id, platform, time_control, stake_amount, status, payment_status, challenger_phone, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING *
		`, req.ChallengerID, req.OpponentID, req.Platform, req.TimeControl, req.StakeAmount,
			models.ChallengeStatusPending, models.PaymentStatusNone, challengerPhone)
		if err != nil {
			log.Printf("[CHALLENGE] Failed to create challenge: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
			return
		}

		log.Printf("[CHALLENGE] ✓ Challenge %d created: user %d vs user %d, stake %.2f", challenge.ID, req.ChallengerID, req.OpponentID, req.StakeAmount)
		c.JSON(http.StatusCreated, challenge)
	}
}

// GetChallenge returns one challenge by id.
func GetChallenge(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge id"})
			return
		}

		var challenge models.Challenge
		err = db.Get(&challenge, `SELECT * FROM challenges WHERE id=$1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load challenge"})
			return
		}

		c.JSON(http.StatusOK, challenge)
	}
}

// AcceptChallenge moves a pending challenge to accepted. Only the invited
// opponent may accept, and only once; accepted_at starts the payment
// deadline clock the sweeper enforces.
func AcceptChallenge(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge id"})
			return
		}

		var req struct {
			UserID int    `json:"user_id" binding:"required"`
			Phone  string `json:"phone"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		var opponentPhone sql.NullString
		if req.Phone != "" {
			details, err := payment.NormalizePhoneNumber(req.Phone)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
				return
			}
			opponentPhone = sql.NullString{String: details.NormalizedNumber, Valid: true}
		}

		var challenge models.Challenge
		err = db.Get(&challenge, `
			UPDATE challenges
			SET status=$1, payment_status=$2, accepted_at=NOW(),
			    opponent_phone=COALESCE($3::varchar, opponent_phone)
			WHERE id=$4 AND status=$5 AND opponent_id=$6
			RETURNING *
		`, models.ChallengeStatusAccepted, models.PaymentStatusPending,
			opponentPhone, id, models.ChallengeStatusPending, req.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusConflict, gin.H{"error": "Challenge is not pending or you are not the invited opponent"})
			return
		}
		if err != nil {
			log.Printf("[CHALLENGE] Failed to accept challenge %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept challenge"})
			return
		}

		log.Printf("[CHALLENGE] ✓ Challenge %d accepted by user %d", id, req.UserID)
		c.JSON(http.StatusOK, challenge)
	}
}

// InitiateChallengeDeposit kicks off the stake collection prompt for one
// player. Each participant deposits exactly once per challenge.
func InitiateChallengeDeposit(db *sqlx.DB, payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge id"})
			return
		}

		var req struct {
			UserID int    `json:"user_id" binding:"required"`
			Phone  string `json:"phone" binding:"required"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		var challenge models.Challenge
		err = db.Get(&challenge, `SELECT * FROM challenges WHERE id=$1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load challenge"})
			return
		}

		if challenge.Status != models.ChallengeStatusAccepted {
			c.JSON(http.StatusConflict, gin.H{"error": "Challenge is not accepting deposits"})
			return
		}
		if req.UserID != challenge.ChallengerID && req.UserID != challenge.OpponentID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant in this challenge"})
			return
		}
		if challenge.StakeAmount <= 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Challenge has no stake"})
			return
		}

		var existing int
		err = db.Get(&existing, `
			SELECT COUNT(*) FROM payments
			WHERE challenge_id=$1 AND user_id=$2 AND transaction_type=$3 AND status IN ('pending', 'completed')
		`, challenge.ID, req.UserID, models.TxnTypeDeposit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing deposits"})
			return
		}
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Deposit already initiated for this challenge"})
			return
		}

		var user models.User
		if err := db.Get(&user, `SELECT * FROM users WHERE id=$1`, req.UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}

		pay, resp, err := payments.InitiateDeposit(c.Request.Context(), &user, &challenge, req.Phone, challenge.StakeAmount)
		if errors.Is(err, payment.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			// The pending row is already marked failed; surface it so the
			// client can retry with a fresh deposit.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      "Deposit initiation failed",
				"payment_id": pay.ID,
			})
			return
		}

		out := gin.H{
			"payment_id": pay.ID,
			"request_id": pay.RequestID,
			"message":    "Deposit initiated - approve the prompt on your phone",
		}
		if resp != nil {
			out["provider_status"] = resp.Status
		}
		c.JSON(http.StatusAccepted, out)
	}
}
