// Package push delivers best-effort push notifications over FCM. Delivery
// failures are logged and counted, never propagated to purchase processing.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"topup-store/internal/metrics"
)

// Message is a data-only push payload; the service worker on the client
// renders it and follows the link on tap.
type Message struct {
	Token    string
	Title    string
	Body     string
	ImageURL string
	Link     string
}

// Config holds FCM sender configuration.
type Config struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
}

// Client sends push notifications through FCM's HTTP API.
type Client struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	endpoint  string
	serverKey string
	http      *http.Client
}

// New creates an FCM client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:    logger.With("component", "push"),
		metrics:   metricRegistry,
		endpoint:  cfg.Endpoint,
		serverKey: cfg.ServerKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// Send delivers a single push message. An empty destination token is a no-op.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return nil
	}
	if c.serverKey == "" {
		return fmt.Errorf("fcm server key not configured")
	}

	data := map[string]string{
		"title": msg.Title,
		"body":  msg.Body,
	}
	if msg.ImageURL != "" {
		data["image"] = msg.ImageURL
	}
	if msg.Link != "" {
		data["link"] = msg.Link
	}

	body, err := json.Marshal(map[string]any{
		"to":   msg.Token,
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.PushSends.WithLabelValues("error").Inc()
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.metrics.PushSends.WithLabelValues(fmt.Sprint(resp.StatusCode)).Inc()
		return fmt.Errorf("send push: status %d", resp.StatusCode)
	}

	c.metrics.PushSends.WithLabelValues("ok").Inc()
	return nil
}
