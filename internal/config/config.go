package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string
	PublicURL   string

	// Payment gateway (mobile money)
	GatewayBaseURL     string
	GatewayTokenURL    string
	GatewayUsername    string
	GatewayPassword    string
	GatewayAccountCode string
	GatewayChannelCode string
	GatewayProductCode string
	GatewayTimeoutSecs int

	// Settlement rules
	MinPayoutAmount       float64
	PaymentTimeoutMinutes int
	SweepIntervalMinutes  int

	// Chess platform API
	ChessAPIBaseURL          string
	ChessAPIUserAgent        string
	RateLimitCooldownMinutes int

	// Result poller
	PollIntervalMinutes int
	MaxPollAttempts     int

	// Security
	JWTSecret         string
	SessionTimeoutMin int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/chessstake?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080"),

		// Payment gateway
		GatewayBaseURL:     getEnv("PAY_GATEWAY_BASE_URL", ""),
		GatewayTokenURL:    getEnv("PAY_GATEWAY_TOKEN_URL", "/oauth/token/"),
		GatewayUsername:    getEnv("PAY_GATEWAY_USERNAME", ""),
		GatewayPassword:    getEnv("PAY_GATEWAY_PASSWORD", ""),
		GatewayAccountCode: getEnv("PAY_GATEWAY_ACCOUNT_CODE", ""),
		GatewayChannelCode: getEnv("PAY_GATEWAY_CHANNEL_CODE", "63902"),
		GatewayProductCode: getEnv("PAY_GATEWAY_PRODUCT_CODE", "4100"),
		GatewayTimeoutSecs: getEnvInt("PAY_GATEWAY_TIMEOUT_SECONDS", 30),

		// Settlement rules
		MinPayoutAmount:       getEnvFloat("MIN_PAYOUT_AMOUNT", 10),
		PaymentTimeoutMinutes: getEnvInt("PAYMENT_TIMEOUT_MINUTES", 5),
		SweepIntervalMinutes:  getEnvInt("SWEEP_INTERVAL_MINUTES", 5),

		// Chess platform API
		ChessAPIBaseURL:          getEnv("CHESS_API_BASE_URL", "https://api.chess.com"),
		ChessAPIUserAgent:        getEnv("CHESS_API_USER_AGENT", "ChessStake/1.0 (support@chessstake.app)"),
		RateLimitCooldownMinutes: getEnvInt("RATE_LIMIT_COOLDOWN_MINUTES", 5),

		// Result poller
		PollIntervalMinutes: getEnvInt("POLL_INTERVAL_MINUTES", 2),
		MaxPollAttempts:     getEnvInt("MAX_POLL_ATTEMPTS", 4),

		// Security
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTimeoutMin: getEnvInt("SESSION_TIMEOUT_MINUTES", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
