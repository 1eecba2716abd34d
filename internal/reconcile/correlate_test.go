package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractRequestID(t *testing.T) {
	const id = "a3f1c2d4-5678-4abc-9def-0123456789ab"

	tests := []struct {
		name    string
		payload CallbackPayload
		want    string
	}{
		{"direct field", CallbackPayload{OriginatorRequestID: id}, id},
		{"provider numeric prefix stripped", CallbackPayload{OriginatorRequestID: "1003|" + id}, id},
		{"whitespace trimmed", CallbackPayload{OriginatorRequestID: "  " + id + " "}, id},
		{"recovered from message text", CallbackPayload{Message: "Payment ref " + id + " received OK"}, id},
		{"field wins over message", CallbackPayload{OriginatorRequestID: id, Message: "other id deadbeef-0000-4000-8000-000000000000"}, id},
		{"nothing recoverable", CallbackPayload{Message: "thanks for your payment"}, ""},
		{"empty payload", CallbackPayload{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractRequestID(&tt.payload))
		})
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		name    string
		payload CallbackPayload
		want    string
	}{
		{"explicit success", CallbackPayload{Status: "Successful"}, StatusCompleted},
		{"explicit completed", CallbackPayload{Status: "COMPLETED"}, StatusCompleted},
		{"explicit failure", CallbackPayload{Status: "Failed"}, StatusFailed},
		{"declined keyword", CallbackPayload{Status: "Transaction Declined"}, StatusFailed},
		{"pending", CallbackPayload{Status: "Pending"}, StatusProcessing},
		{"initiated", CallbackPayload{Status: "initiated"}, StatusProcessing},
		{"ref present without status implies success", CallbackPayload{TransactionRef: "MPE123XYZ"}, StatusCompleted},
		{"known failure code beats ref", CallbackPayload{StatusCode: "1032", TransactionRef: "MPE123XYZ"}, StatusFailed},
		{"known failure code beats success word", CallbackPayload{StatusCode: "1037", Status: "Successful"}, StatusFailed},
		{"nothing usable stays transient", CallbackPayload{Message: "hello"}, StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(&tt.payload))
		})
	}
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "cancelled by user", FailureReason(&CallbackPayload{StatusCode: "1032", Message: "raw provider text"}))
	assert.Equal(t, "raw provider text", FailureReason(&CallbackPayload{StatusCode: "9999", Message: "raw provider text"}))
}
