package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/chessstake/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// CallbackPath is the route, relative to the /api/v1 group, that the API
// layer serves provider status callbacks on. The gateway registers it with
// the provider on every call, so the two must never drift apart.
const CallbackPath = "/payments/callback"

// Gateway handles the mobile money provider API integration
type Gateway struct {
	baseURL     string
	tokenURL    string
	username    string
	password    string
	accountCode string
	channelCode string
	productCode string
	callbackURL string
	rdb         *redis.Client
	httpClient  *http.Client
	cacheKey    string
}

// NewGateway creates a new gateway client. Returns nil if not configured.
func NewGateway(cfg *config.Config, rdb *redis.Client) *Gateway {
	if cfg == nil || cfg.GatewayBaseURL == "" || cfg.GatewayUsername == "" || cfg.GatewayPassword == "" {
		log.Printf("[PAYMENT] Gateway not fully configured - skipping initialization")
		return nil
	}

	return &Gateway{
		baseURL:     strings.TrimRight(cfg.GatewayBaseURL, "/"),
		tokenURL:    cfg.GatewayTokenURL,
		username:    cfg.GatewayUsername,
		password:    cfg.GatewayPassword,
		accountCode: cfg.GatewayAccountCode,
		channelCode: cfg.GatewayChannelCode,
		productCode: cfg.GatewayProductCode,
		callbackURL: strings.TrimRight(cfg.PublicURL, "/") + "/api/v1" + CallbackPath,
		rdb:         rdb,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.GatewayTimeoutSecs) * time.Second},
		cacheKey:    "pay_gateway_token:",
	}
}

// getAccessToken fetches or retrieves a cached OAuth2 token. Tokens are
// short-lived, so the cache TTL is 90% of the provider's expiry.
func (g *Gateway) getAccessToken(ctx context.Context) (string, error) {
	if g.rdb != nil {
		cacheKey := g.cacheKey + g.username[:min(8, len(g.username))]
		if token, err := g.rdb.Get(ctx, cacheKey).Result(); err == nil {
			return token, nil
		}
	}

	log.Printf("[PAYMENT] Fetching new gateway access token")
	tokenEndpoint := g.baseURL + g.tokenURL

	payload := "grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, "POST", tokenEndpoint, bytes.NewBufferString(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(g.username + ":" + g.password))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[PAYMENT] Token request failed: status=%d body=%s", resp.StatusCode, string(body))
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", errors.New("no access_token in response")
	}

	if g.rdb != nil && tokenResp.ExpiresIn > 0 {
		cacheDuration := time.Duration(float64(tokenResp.ExpiresIn)*0.9) * time.Second
		cacheKey := g.cacheKey + g.username[:min(8, len(g.username))]
		g.rdb.Set(ctx, cacheKey, tokenResp.AccessToken, cacheDuration)
	}

	return tokenResp.AccessToken, nil
}

// DepositRequest represents an STK-push collection request
type DepositRequest struct {
	Phone       string
	Amount      float64
	RequestID   string
	Description string
}

// WithdrawRequest represents a payout/refund disbursement request
type WithdrawRequest struct {
	Phone       string
	Amount      float64
	RequestID   string
	Description string
}

// ProviderResponse is the gateway's response to a deposit or withdrawal call
type ProviderResponse struct {
	Status              string `json:"status"`
	StatusCode          string `json:"status_code"`
	TransactionID       string `json:"transaction_id"`
	OriginatorRequestID string `json:"originator_request_id"`
	Message             string `json:"message"`
}

// Deposit initiates a mobile money collection (STK push). The caller is
// responsible for having persisted a pending Payment row first.
func (g *Gateway) Deposit(ctx context.Context, req DepositRequest) (*ProviderResponse, error) {
	return g.call(ctx, "deposit", req.Phone, req.Amount, req.RequestID, req.Description, true)
}

// Withdraw initiates a mobile money payout or refund.
func (g *Gateway) Withdraw(ctx context.Context, req WithdrawRequest) (*ProviderResponse, error) {
	return g.call(ctx, "withdraw", req.Phone, req.Amount, req.RequestID, req.Description, false)
}

func (g *Gateway) call(ctx context.Context, kind, phone string, amount float64, requestID, description string, isDeposit bool) (*ProviderResponse, error) {
	if g == nil {
		return nil, errors.New("payment gateway not initialized")
	}

	// Get access token with retry
	var token string
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var err error
		token, err = g.getAccessToken(ctx)
		if err == nil {
			break
		}
		lastErr = err
		time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
	}
	if token == "" {
		return nil, fmt.Errorf("failed to get access token: %w", lastErr)
	}

	phoneDetails, err := NormalizePhoneNumber(phone)
	if err != nil {
		return nil, fmt.Errorf("invalid phone number: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/%s/", g.baseURL, g.accountCode, kind)

	payload := map[string]interface{}{
		"originator_request_id": requestID,
		"amount":                int(math.Round(amount)),
		"channel_code":          g.channelCode,
		"product_code":          g.productCode,
		"description":           description,
		"callback_url":          g.callbackURL,
	}
	if isDeposit {
		payload["source_account"] = phoneDetails.NormalizedNumber
		payload["destination_account"] = g.accountCode
	} else {
		payload["source_account"] = g.accountCode
		payload["destination_account"] = phoneDetails.NormalizedNumber
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	log.Printf("[PAYMENT] Initiating %s: phone=%s amount=%.2f request_id=%s", kind, phoneDetails.NormalizedNumber, amount, requestID)

	// Send request with retry for transient errors
	for attempt := 0; attempt < 3; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonPayload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if attempt < 2 {
				time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("%s request failed: %w", kind, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}

		log.Printf("[PAYMENT] %s response: status=%d body=%s", kind, resp.StatusCode, string(body))

		var provResp ProviderResponse
		if err := json.Unmarshal(body, &provResp); err != nil {
			// 403 means a stale token; clear the cache so the next task refreshes
			if resp.StatusCode == http.StatusForbidden {
				g.clearTokenCache(ctx)
			}
			return nil, fmt.Errorf("failed to decode response: %w (body: %s)", err, string(body))
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return &provResp, nil
		}

		if resp.StatusCode == http.StatusForbidden {
			g.clearTokenCache(ctx)
			return &provResp, fmt.Errorf("%s failed (auth error): %d - %s", kind, resp.StatusCode, provResp.Message)
		}

		// Retry on 5xx errors
		if resp.StatusCode >= 500 && attempt < 2 {
			lastErr = fmt.Errorf("%s failed with status %d: %s", kind, resp.StatusCode, string(body))
			time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
			continue
		}

		// 4xx errors - don't retry
		return &provResp, fmt.Errorf("%s failed: %d - %s", kind, resp.StatusCode, provResp.Message)
	}

	return nil, fmt.Errorf("%s failed after retries: %w", kind, lastErr)
}

func (g *Gateway) clearTokenCache(ctx context.Context) {
	if g.rdb == nil {
		return
	}
	cacheKey := g.cacheKey + g.username[:min(8, len(g.username))]
	g.rdb.Del(ctx, cacheKey)
	log.Printf("[PAYMENT] Cleared cached gateway token")
}
