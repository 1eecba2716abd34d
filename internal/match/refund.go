package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	"github.com/chessstake/backend/internal/metrics"
	"github.com/chessstake/backend/internal/models"
)

// AutoRefund is the safety net for matches whose result never appeared
// within the poller's attempt budget. Both stakes go back to their owners,
// routed per the payout threshold, and the match is marked terminal with a
// no_result outcome so it is never re-polled.
func (s *Settler) AutoRefund(ctx context.Context, m *models.OngoingMatch) error {
	challenge, err := s.loadChallenge(m.ChallengeID)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"outcome": "no_result",
		"reason":  "result polling attempts exhausted",
	})

	if !s.claimMatch(m.ChallengeID, sql.NullInt64{}, string(payload)) {
		log.Printf("[SETTLE] Match for challenge %d already settled, auto-refund skipped", m.ChallengeID)
		return nil
	}

	if challenge.StakeAmount <= 0 {
		log.Printf("[SETTLE] Challenge %d timed out with no stake - resolved with no money movement", challenge.ID)
		metrics.SettlementsTotal.WithLabelValues("no_stake").Inc()
		s.completeChallenge(challenge.ID)
		return nil
	}

	log.Printf("[SETTLE] No result found for challenge %d - refunding both players %.2f each", challenge.ID, challenge.StakeAmount)
	s.refundBoth(ctx, challenge, m, "no_result")
	metrics.SettlementsTotal.WithLabelValues("no_result_refund").Inc()
	s.completeChallenge(challenge.ID)
	return nil
}
