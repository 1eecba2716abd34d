package api

import (
	"github.com/chessstake/backend/internal/api/handlers"
	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/match"
	"github.com/chessstake/backend/internal/middleware"
	"github.com/chessstake/backend/internal/payment"
	"github.com/chessstake/backend/internal/reconcile"
	"github.com/chessstake/backend/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries the long-lived services the handlers close over.
type Deps struct {
	Payments   *payment.Service
	Reconciler *reconcile.Reconciler
	Settler    *match.Settler
	Poller     *match.Poller
	Hub        *ws.Hub
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, cfg *config.Config, deps Deps) {
	router.Use(middleware.CORSMiddleware(cfg))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)

		// Mobile money provider callbacks, at the path the gateway registers
		v1.POST(payment.CallbackPath, handlers.HandlePaymentCallback(deps.Reconciler))

		// Player event stream
		v1.GET("/ws", deps.Hub.HandleWS())

		// Challenge lifecycle
		challenges := v1.Group("/challenges")
		{
			challenges.POST("", handlers.CreateChallenge(db))
			challenges.GET("/:id", handlers.GetChallenge(db))
			challenges.POST("/:id/accept", handlers.AcceptChallenge(db))
			challenges.POST("/:id/deposit", handlers.InitiateChallengeDeposit(db, deps.Payments))
		}

		// Operator endpoints
		admin := v1.Group("/admin")
		{
			admin.POST("/login", handlers.AdminLogin(db, cfg))

			authed := admin.Group("")
			authed.Use(middleware.AdminAuth(cfg))
			{
				authed.GET("/matches/unresolved", handlers.ListUnresolvedMatches(db))
				authed.POST("/matches/:id/settle", handlers.ForceSettleMatch(db, deps.Settler, deps.Poller))
				authed.POST("/challenges/:id/cancel", handlers.CancelChallenge(db, deps.Poller))
			}
		}
	}
}
