package payment

import (
	"testing"

	"github.com/chessstake/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayCallbackURLTargetsCallbackRoute(t *testing.T) {
	cfg := &config.Config{
		GatewayBaseURL:  "https://pay.example.com",
		GatewayUsername: "user",
		GatewayPassword: "pass",
		PublicURL:       "https://app.example.com/",
	}

	g := NewGateway(cfg, nil)
	require.NotNil(t, g)

	// The provider posts status updates to this URL; it must be the exact
	// route the API layer serves, or every callback 404s and no deposit
	// ever completes.
	assert.Equal(t, "https://app.example.com/api/v1"+CallbackPath, g.callbackURL)
	assert.Equal(t, "https://app.example.com/api/v1/payments/callback", g.callbackURL)
}

func TestGatewayNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewGateway(&config.Config{}, nil))
}
