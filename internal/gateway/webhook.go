package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"topup-store/internal/metrics"
	"topup-store/internal/repo"
	"topup-store/internal/txid"
)

// WebhookEvent carries an inbound payment callback.
type WebhookEvent struct {
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// WebhookProcessor handles authenticated payment events.
type WebhookProcessor interface {
	HandlePaymentEvent(ctx context.Context, event WebhookEvent) error
}

// WebhookHandler authenticates gateway callbacks and forwards them to the
// processor. Authentication is the first action on every request; nothing is
// read or mutated before it passes.
type WebhookHandler struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	expectedAuth string
	processor    WebhookProcessor
}

// NewWebhookHandler creates a webhook handler. The gateway signs callbacks
// with sha256(username:password) in the Authorization header; an empty
// username or password leaves the handler unconfigured and every callback is
// answered with a server error.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, username, password string, processor WebhookProcessor) *WebhookHandler {
	expected := ""
	if username != "" && password != "" {
		sum := sha256.Sum256([]byte(username + ":" + password))
		expected = hex.EncodeToString(sum[:])
	}
	return &WebhookHandler{
		logger:       logger.With("component", "gateway_webhook"),
		metrics:      metricRegistry,
		expectedAuth: expected,
		processor:    processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.expectedAuth == "" {
		h.logger.Error("webhook credentials not configured")
		h.metrics.Errors.WithLabelValues("gateway_webhook_config").Inc()
		writeResult(w, http.StatusInternalServerError, false, "Server configuration error.")
		return
	}

	auth := r.Header.Get("Authorization")
	if subtle.ConstantTimeCompare([]byte(auth), []byte(h.expectedAuth)) != 1 {
		h.logger.Warn("webhook received with invalid authorization")
		h.metrics.Errors.WithLabelValues("gateway_webhook_auth").Inc()
		writeResult(w, http.StatusUnauthorized, false, "Unauthorized.")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("gateway_webhook").Inc()
		writeResult(w, http.StatusBadRequest, false, "Failed to read body.")
		return
	}
	defer r.Body.Close()

	event := WebhookEvent{
		Payload:    body,
		ReceivedAt: time.Now(),
	}

	if err := h.processor.HandlePaymentEvent(r.Context(), event); err != nil {
		status, message := classifyProcessingError(err)
		h.logger.Error("failed processing webhook", "error", err, "status", status)
		h.metrics.Errors.WithLabelValues("gateway_webhook_process").Inc()
		writeResult(w, status, false, message)
		return
	}

	writeResult(w, http.StatusOK, true, "Webhook processed.")
}

func classifyProcessingError(err error) (int, string) {
	switch {
	case errors.Is(err, txid.ErrMalformed):
		return http.StatusBadRequest, "Invalid transaction ID format."
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, "Product or user not found."
	default:
		return http.StatusInternalServerError, "Webhook processing failed."
	}
}

func writeResult(w http.ResponseWriter, status int, success bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
	})
}
