package payment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Kenyan mobile numbers: 7XXXXXXXX (Safaricom/Airtel) or 1XXXXXXXX ranges.
var phoneRegex = regexp.MustCompile(`^([71][0-9])(\d{7})$`)

// PhoneDetails contains normalized phone information
type PhoneDetails struct {
	NormalizedNumber string
	Prefix           string
}

// NormalizePhoneNumber validates and normalizes Kenyan phone numbers.
// Accepts +2547..., 2547..., 07... and bare 7... forms and returns the
// canonical 254XXXXXXXXX format the gateway expects.
func NormalizePhoneNumber(phone string) (*PhoneDetails, error) {
	phone = strings.TrimSpace(phone)

	// Remove leading '+'
	if strings.HasPrefix(phone, "+") {
		phone = phone[1:]
	}

	var localPart string
	if strings.HasPrefix(phone, "254") {
		localPart = phone[3:]
	} else if strings.HasPrefix(phone, "0") {
		localPart = phone[1:]
	} else {
		localPart = phone
	}

	match := phoneRegex.FindStringSubmatch(localPart)
	if match == nil {
		return nil, fmt.Errorf("invalid phone number format: %s", phone)
	}

	return &PhoneDetails{
		NormalizedNumber: "254" + localPart,
		Prefix:           match[1],
	}, nil
}

// NewRequestID generates the globally-unique correlation key stored on a
// Payment row at creation. Generated exactly once, never reused; the
// webhook reconciler matches callbacks back to their row by this token.
func NewRequestID() string {
	return uuid.NewString()
}
