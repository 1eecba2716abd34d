package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/chessstake/backend/internal/match"
	"github.com/chessstake/backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// ListUnresolvedMatches returns matches still awaiting a result, oldest
// first. This is the operator's queue for manual settlement.
func ListUnresolvedMatches(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var matches []models.OngoingMatch
		err := db.Select(&matches, `
			SELECT * FROM ongoing_matches
			WHERE result_checked = FALSE
			ORDER BY started_at
		`)
		if err != nil {
			log.Printf("[ADMIN] Failed to list unresolved matches: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list matches"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
	}
}

// ForceSettleMatch applies an operator-decided outcome to a match the poller
// could not resolve, or resolved wrongly (unknown result combinations settle
// as a draw and land here for review). Cancels any pending result timer
// first; the settlement claim makes a racing timer harmless either way.
func ForceSettleMatch(db *sqlx.DB, settler *match.Settler, poller *match.Poller) gin.HandlerFunc {
	return func(c *gin.Context) {
		challengeID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge id"})
			return
		}

		var req struct {
			Outcome string `json:"outcome" binding:"required"`
			Note    string `json:"note"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		outcome, ok := match.ParseOutcome(req.Outcome)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Outcome must be challenger_win, opponent_win or draw"})
			return
		}

		var m models.OngoingMatch
		err = db.Get(&m, `SELECT * FROM ongoing_matches WHERE challenge_id=$1`, challengeID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No match for that challenge"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match"})
			return
		}
		if m.ResultChecked {
			c.JSON(http.StatusConflict, gin.H{"error": "Match is already settled"})
			return
		}

		admin := c.GetString("admin_username")
		poller.Cancel(challengeID)

		if err := settler.SettleManually(c.Request.Context(), &m, outcome, req.Note); err != nil {
			log.Printf("[ADMIN] Manual settlement of challenge %d by %s failed: %v", challengeID, admin, err)
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		log.Printf("[ADMIN] ✓ Challenge %d settled manually as %s by %s", challengeID, outcome.Label(), admin)
		c.JSON(http.StatusOK, gin.H{
			"challenge_id": challengeID,
			"outcome":      outcome.Label(),
			"status":       "settled",
		})
	}
}

// CancelChallenge cancels a challenge that holds no player money. Funded
// challenges are refused: the sweeper refunds stuck ones and the settle
// endpoint resolves started matches.
func CancelChallenge(db *sqlx.DB, poller *match.Poller) gin.HandlerFunc {
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

		if challenge.Status != models.ChallengeStatusPending && challenge.Status != models.ChallengeStatusAccepted {
			c.JSON(http.StatusConflict, gin.H{"error": "Challenge can no longer be cancelled"})
			return
		}

		var funded int
		err = db.Get(&funded, `
			SELECT COUNT(*) FROM payments
			WHERE challenge_id=$1 AND transaction_type=$2 AND status='completed'
		`, id, models.TxnTypeDeposit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check deposits"})
			return
		}
		if funded > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Challenge holds completed deposits; the timeout sweeper will refund and cancel it"})
			return
		}

		_, err = db.Exec(`UPDATE challenges SET status=$1 WHERE id=$2`, models.ChallengeStatusCancelled, id)
		if err != nil {
			log.Printf("[ADMIN] Failed to cancel challenge %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel challenge"})
			return
		}

		// Stale pending deposit prompts can no longer be honored.
		_, err = db.Exec(`
			UPDATE payments SET status=$1, notes='challenge cancelled by admin'
			WHERE challenge_id=$2 AND status='pending' AND transaction_type=$3
		`, models.TxnStatusCancelled, id, models.TxnTypeDeposit)
		if err != nil {
			log.Printf("[ADMIN] Failed to cancel pending payments for challenge %d: %v", id, err)
		}

		poller.Cancel(id)

		admin := c.GetString("admin_username")
		log.Printf("[ADMIN] ✓ Challenge %d cancelled by %s", id, admin)
		c.JSON(http.StatusOK, gin.H{"challenge_id": id, "status": "cancelled"})
	}
}
