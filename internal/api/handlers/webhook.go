package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/chessstake/backend/internal/reconcile"
	"github.com/gin-gonic/gin"
)

// maxCallbackBody caps how much provider callback we will read.
const maxCallbackBody = 1 << 20

// HandlePaymentCallback receives asynchronous status callbacks from the
// mobile money provider. Responses are success-biased: anything short of an
// internal error returns 200 so the provider stops retrying; retrying would
// change nothing because the reconciler is idempotent.
func HandlePaymentCallback(rec *reconcile.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			log.Printf("[WEBHOOK] Failed to read callback body: %v", err)
			c.JSON(http.StatusOK, gin.H{"status": "received"})
			return
		}

		outcome, err := rec.ProcessCallback(c.Request.Context(), raw)
		if outcome == reconcile.OutcomeError {
			log.Printf("[WEBHOOK] Callback processing error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Callback processing failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "received", "outcome": string(outcome)})
	}
}
