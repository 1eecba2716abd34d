package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		name        string
		timeControl string
		want        time.Duration
	}{
		{"seconds plus increment", "600+5", 600*2*time.Second + 40*5*2*time.Second},
		{"seconds no increment", "600", 20 * time.Minute},
		{"minutes pipe increment", "10|5", 10*2*time.Minute + 40*5*2*time.Second},
		{"bare small number is minutes", "10", 20 * time.Minute},
		{"blitz", "180+2", 180*2*time.Second + 40*2*2*time.Second},
		{"unparseable", "correspondence", DefaultEstimatedDuration},
		{"empty", "", DefaultEstimatedDuration},
		{"garbage increment", "600+x", DefaultEstimatedDuration},
		{"negative base", "-300", DefaultEstimatedDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateDuration(tt.timeControl))
		})
	}
}
