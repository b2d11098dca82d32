package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"topup-store/internal/cache"
	"topup-store/internal/metrics"
)

const (
	payPath        = "/checkout/v2/pay"
	tokenCacheKey  = "gateway:oauth:token"
	tokenTTLBuffer = 60 * time.Second
)

// Client provides typed access to the payment gateway's checkout API.
type Client struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	baseURL       string
	authURL       string
	clientID      string
	clientSecret  string
	clientVersion string
	http          *http.Client
	cache         *cache.Redis
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL       string
	AuthURL       string
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Timeout       time.Duration
}

// New creates a new gateway client. The OAuth token is cached in Redis with
// its gateway-reported expiry so concurrent instances share one token and
// restarts do not re-authenticate needlessly.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics, redis *cache.Redis) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	version := cfg.ClientVersion
	if version == "" {
		version = "1"
	}
	return &Client{
		logger:        logger.With("component", "gateway"),
		metrics:       metricRegistry,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authURL:       cfg.AuthURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		clientVersion: version,
		http:          &http.Client{Timeout: timeout},
		cache:         redis,
	}
}

type authToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (t authToken) valid(now time.Time) bool {
	return t.AccessToken != "" && time.Unix(t.ExpiresAt, 0).After(now.Add(tokenTTLBuffer))
}

// AuthToken returns a bearer token for the checkout API, fetching a fresh one
// when the cached token is absent or within the expiry buffer.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", fmt.Errorf("gateway client credentials not configured")
	}

	now := time.Now()
	if c.cache != nil {
		var cached authToken
		ok, err := c.cache.GetJSON(ctx, tokenCacheKey, &cached)
		if err != nil {
			c.logger.Warn("read token cache failed", "error", err)
		} else if ok && cached.valid(now) {
			return cached.AccessToken, nil
		}
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("client_version", c.clientVersion)
	form.Set("grant_type", "client_credentials")

	token, err := c.fetchToken(ctx, form)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		ttl := time.Until(time.Unix(token.ExpiresAt, 0)) - tokenTTLBuffer
		if ttl > 0 {
			if err := c.cache.SetJSON(ctx, tokenCacheKey, token, ttl); err != nil {
				c.logger.Warn("set token cache failed", "error", err)
			}
		}
	}

	return token.AccessToken, nil
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (authToken, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return authToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("oauth_token", "error", start)
		return authToken{}, fmt.Errorf("fetch gateway token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("oauth_token", "error", start)
		return authToken{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.observe("oauth_token", fmt.Sprint(resp.StatusCode), start)
		return authToken{}, fmt.Errorf("gateway token request failed: status %d", resp.StatusCode)
	}

	var token authToken
	if err := json.Unmarshal(body, &token); err != nil {
		c.observe("oauth_token", "error", start)
		return authToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		c.observe("oauth_token", "error", start)
		return authToken{}, fmt.Errorf("gateway token response missing access token")
	}

	c.observe("oauth_token", "ok", start)
	return token, nil
}

// CheckoutRequest describes a payment to initiate.
type CheckoutRequest struct {
	TransactionID string
	AmountPaise   int64
	GamingID      string
	ProductName   string
	RedirectURL   string
}

// CheckoutResponse is the gateway's answer to a pay request.
type CheckoutResponse struct {
	OrderID     string `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
}

// CreateOrder registers a checkout with the gateway and returns the hosted
// payment page URL the storefront redirects the buyer to.
func (c *Client) CreateOrder(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	token, err := c.AuthToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"merchantOrderId": req.TransactionID,
		"amount":          req.AmountPaise,
		"metaInfo": map[string]string{
			"udf1": req.GamingID,
			"udf2": req.ProductName,
		},
		"paymentFlow": map[string]any{
			"type": "PG_CHECKOUT",
			"merchantUrls": map[string]string{
				"redirectUrl": req.RedirectURL,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal pay request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "O-Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.observe("pay", "error", start)
		return nil, fmt.Errorf("gateway pay request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("pay", "error", start)
		return nil, fmt.Errorf("read pay response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.observe("pay", fmt.Sprint(resp.StatusCode), start)
		return nil, fmt.Errorf("gateway pay request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var checkout CheckoutResponse
	if err := json.Unmarshal(respBody, &checkout); err != nil {
		c.observe("pay", "error", start)
		return nil, fmt.Errorf("decode pay response: %w", err)
	}
	if checkout.RedirectURL == "" {
		c.observe("pay", "error", start)
		return nil, fmt.Errorf("gateway pay response missing redirect url")
	}

	c.observe("pay", "ok", start)
	return &checkout, nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	c.metrics.GatewayRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.GatewayLatency.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
}
