package main

import (
	"context"
	"log"
	"os"

	"github.com/chessstake/backend/internal/api"
	"github.com/chessstake/backend/internal/chessapi"
	"github.com/chessstake/backend/internal/config"
	"github.com/chessstake/backend/internal/database"
	"github.com/chessstake/backend/internal/match"
	"github.com/chessstake/backend/internal/migrations"
	"github.com/chessstake/backend/internal/notify"
	"github.com/chessstake/backend/internal/payment"
	"github.com/chessstake/backend/internal/reconcile"
	"github.com/chessstake/backend/internal/redis"
	"github.com/chessstake/backend/internal/sweeper"
	"github.com/chessstake/backend/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	ctx := context.Background()

	// Mobile money gateway (if configured)
	gateway := payment.NewGateway(cfg, rdb)
	if gateway != nil {
		log.Printf("[PAYMENT] Mobile money gateway initialized (account=%s)", cfg.GatewayAccountCode)
	} else {
		log.Printf("[PAYMENT] Gateway not configured - provider operations will fail until PAY_GATEWAY_* are set")
	}
	payments := payment.NewService(ctx, db, gateway, cfg)

	notifier := notify.NewNotifier(rdb)

	// Chess platform API client with its rate-adaptive request queue
	chess := chessapi.NewClient(ctx, cfg)

	settler := match.NewSettler(db, payments, notifier)
	poller := match.NewPoller(db, chess, settler, cfg)
	reconciler := reconcile.NewReconciler(db, notifier, poller)

	// Pick up matches that were awaiting results when the process last stopped
	poller.ResumeUnchecked(ctx)

	// Payment timeout sweeper refunds and cancels stuck challenges
	if err := sweeper.New(db, payments, notifier, cfg).Start(ctx, cfg); err != nil {
		log.Fatalf("Failed to start payment timeout sweeper: %v", err)
	}

	// WebSocket hub fans player events out to connected clients
	hub := ws.NewHub()
	hub.StartEventSubscriber(ctx, rdb)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	api.SetupRoutes(router, db, cfg, api.Deps{
		Payments:   payments,
		Reconciler: reconciler,
		Settler:    settler,
		Poller:     poller,
		Hub:        hub,
	})

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting ChessStake server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
