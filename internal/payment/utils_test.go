package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"international plus", "+254712345678", "254712345678", false},
		{"international bare", "254712345678", "254712345678", false},
		{"local zero prefix", "0712345678", "254712345678", false},
		{"bare local", "712345678", "254712345678", false},
		{"new 1xx range", "0110345678", "254110345678", false},
		{"whitespace", "  0712345678 ", "254712345678", false},
		{"too short", "07123", "", true},
		{"letters", "07abc45678", "", true},
		{"wrong range", "0812345678", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details, err := NormalizePhoneNumber(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, details.NormalizedNumber)
		})
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "request id repeated: %s", id)
		seen[id] = true
	}
}
