package reconcile

import (
	"regexp"
	"strings"
)

// CallbackPayload is the provider's webhook body. Field presence is
// unreliable: the correlation id may be missing or buried in the message,
// and the status is sometimes omitted entirely on success.
type CallbackPayload struct {
	OriginatorRequestID string `json:"originator_request_id"`
	TransactionRef      string `json:"transaction_reference"`
	Status              string `json:"status"`
	StatusCode          string `json:"status_code"`
	Message             string `json:"message"`
}

// Internal statuses a callback can map to. StatusProcessing is a transient
// provider-side state, not a terminal one.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
)

// requestIDPattern matches the uuid tokens we issue as request ids, for
// digging one out of free-text message fields.
var requestIDPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// providerPrefixPattern matches the numeric routing prefix the provider
// sometimes prepends to our id ("1003|<id>").
var providerPrefixPattern = regexp.MustCompile(`^\d+\|`)

// Provider status codes known to mean a failed transaction. These win over
// every other signal, including a present transaction reference.
var failureCodes = map[string]string{
	"1032": "cancelled by user",
	"1037": "request timed out",
	"1025": "insufficient funds",
	"2001": "wrong pin or account problem",
	"1019": "transaction expired",
}

// ExtractRequestID recovers the correlation id from a callback. Returns ""
// when nothing usable can be found; the caller must treat that as a
// success-with-no-op, never as a retryable provider error.
func ExtractRequestID(payload *CallbackPayload) string {
	id := strings.TrimSpace(payload.OriginatorRequestID)
	if id != "" {
		// Strip the provider-added numeric prefix ("1003|XXXX").
		id = providerPrefixPattern.ReplaceAllString(id, "")
		if requestIDPattern.MatchString(id) {
			return requestIDPattern.FindString(id)
		}
		return id
	}

	if token := requestIDPattern.FindString(payload.Message); token != "" {
		return token
	}

	return ""
}

// MapStatus classifies a callback into an internal payment status.
//
// A present transaction reference is treated as a strong success signal
// even when the status field is absent (observed provider quirk), but an
// explicit known failure code always wins.
func MapStatus(payload *CallbackPayload) string {
	if _, known := failureCodes[strings.TrimSpace(payload.StatusCode)]; known {
		return StatusFailed
	}

	status := strings.ToLower(strings.TrimSpace(payload.Status))

	switch {
	case strings.Contains(status, "success") || strings.Contains(status, "completed"):
		return StatusCompleted
	case strings.Contains(status, "fail") || strings.Contains(status, "declined") ||
		strings.Contains(status, "cancel") || strings.Contains(status, "error"):
		return StatusFailed
	case strings.Contains(status, "pending") || strings.Contains(status, "processing") ||
		strings.Contains(status, "initiated"):
		return StatusProcessing
	}

	if strings.TrimSpace(payload.TransactionRef) != "" {
		return StatusCompleted
	}

	return StatusProcessing
}

// FailureReason returns the human description for a known failure code, or
// the raw message when the code is not recognized.
func FailureReason(payload *CallbackPayload) string {
	if reason, ok := failureCodes[strings.TrimSpace(payload.StatusCode)]; ok {
		return reason
	}
	return payload.Message
}
