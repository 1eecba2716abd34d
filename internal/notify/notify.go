package notify

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

// PlayerEventsChannel is the Redis channel the websocket hub subscribes to.
const PlayerEventsChannel = "player_events"

// Named player events consumed by the front-end layer.
const (
	EventPaymentSuccess   = "payment_success"
	EventPaymentFailed    = "payment_failed"
	EventDepositsComplete = "deposits_complete"
	EventMatchRefunded    = "match_refunded"
	EventChallengeExpired = "challenge_expired"
)

// Notifier publishes named player events to Redis. Delivery is best effort:
// a dropped notification never fails the money movement that produced it.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish sends an event addressed to a single player. Extra fields ride
// alongside the type and user id.
func (n *Notifier) Publish(ctx context.Context, userID int, event string, data map[string]interface{}) {
	if n == nil || n.rdb == nil {
		return
	}

	payload := map[string]interface{}{
		"type":    event,
		"user_id": userID,
	}
	for k, v := range data {
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[NOTIFY] Failed to marshal %s event for user %d: %v", event, userID, err)
		return
	}

	if err := n.rdb.Publish(ctx, PlayerEventsChannel, raw).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to publish %s event for user %d: %v", event, userID, err)
		return
	}

	log.Printf("[NOTIFY] Published %s for user %d", event, userID)
}

// FriendlyPaymentMessage translates a raw provider diagnostic into a message
// safe to show a player. The raw text travels separately for diagnostics.
func FriendlyPaymentMessage(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "cancel"):
		return "You cancelled the payment request. You can try again anytime."
	case strings.Contains(lower, "insufficient") || strings.Contains(lower, "balance"):
		return "Your mobile money balance was too low for this payment."
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "expired"):
		return "The payment request timed out. Please try again."
	default:
		return "Your payment could not be completed. Please try again."
	}
}
