package api

import (
	"net/http"
	"testing"

	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/payment"
	"github.com/chessstake/backend/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProviderCallbackRouteMatchesGatewayPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, nil, &config.Config{Environment: "development"}, Deps{Hub: ws.NewHub()})

	found := false
	for _, route := range router.Routes() {
		if route.Method == http.MethodPost && route.Path == "/api/v1"+payment.CallbackPath {
			found = true
			break
		}
	}
	assert.True(t, found, "no POST route at /api/v1%s - provider callbacks would 404", payment.CallbackPath)
}
