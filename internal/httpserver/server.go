package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"topup-store/internal/audit"
	"topup-store/internal/cache"
	"topup-store/internal/gateway"
	"topup-store/internal/ledger"
	"topup-store/internal/metrics"
	"topup-store/internal/repo"
	"topup-store/internal/txid"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups optional HTTP handlers to mount.
type Handlers struct {
	PaymentWebhook http.Handler
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Repository repo.Store
	Redis      *cache.Redis
	Gateway    *gateway.Client
	Audit      *audit.Store
	Pages      *cache.PageInvalidator
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer    *http.Server
	logger        *slog.Logger
	metrics       *metrics.Metrics
	handlers      Handlers
	deps          Dependencies
	basePath      string
	publicBaseURL string
}

// New creates a new HTTP server listening on addr with health and metrics endpoints.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, handlers Handlers, basePath, publicBaseURL string) *Server {
	server := &Server{
		logger:        logger.With("component", "http"),
		metrics:       metricRegistry,
		handlers:      handlers,
		basePath:      normaliseBasePath(basePath),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/checkout", server.handleCheckout)
	mux.HandleFunc("/api/orders/status", server.handleOrderStatus)
	mux.HandleFunc("/admin/webhook-events", server.handleWebhookEvents)
	mux.HandleFunc("/admin/invalidate-cache", server.handleInvalidateCache)

	if handlers.PaymentWebhook != nil {
		mux.Handle("/webhook/payments", handlers.PaymentWebhook)
	}

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// SetDependencies makes dependencies accessible to handlers.
func (s *Server) SetDependencies(deps Dependencies) {
	s.deps = deps
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

type checkoutRequest struct {
	GamingID  string `json:"gamingId"`
	ProductID string `json:"productId"`
}

// handleCheckout initiates a gateway payment for a user/product pair. The
// charge amount and coin discount are computed here, never taken from the
// client.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Repository == nil || s.deps.Gateway == nil {
		http.Error(w, "checkout unavailable", http.StatusServiceUnavailable)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid request body."})
		return
	}

	user, err := s.deps.Repository.GetUserByGamingID(r.Context(), req.GamingID)
	if err != nil {
		s.respondLookupError(w, err, "user")
		return
	}
	product, err := s.deps.Repository.GetProductByID(r.Context(), req.ProductID)
	if err != nil {
		s.respondLookupError(w, err, "product")
		return
	}
	if !product.IsAvailable {
		writeJSONStatus(w, http.StatusConflict, map[string]any{"success": false, "message": "Product is not available."})
		return
	}

	coinsUsed := ledger.CoinsUsed(*user, *product)
	amountPaise := product.PricePaise - coinsUsed*100
	if amountPaise < 0 {
		amountPaise = 0
	}

	transactionID, err := txid.Encode(time.Now(), user.GamingID, product.ID)
	if err != nil {
		s.logger.Error("failed encoding transaction id", "error", err, "gaming_id", req.GamingID)
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid gaming ID."})
		return
	}

	checkout, err := s.deps.Gateway.CreateOrder(r.Context(), gateway.CheckoutRequest{
		TransactionID: transactionID,
		AmountPaise:   amountPaise,
		GamingID:      user.GamingID,
		ProductName:   product.Name,
		RedirectURL:   s.publicBaseURL + "/order?orderId=" + transactionID,
	})
	if err != nil {
		s.logger.Error("failed creating gateway order", "error", err, "transaction_id", transactionID)
		s.metrics.Errors.WithLabelValues("checkout").Inc()
		writeJSONStatus(w, http.StatusBadGateway, map[string]any{"success": false, "message": "Failed to create payment."})
		return
	}

	writeJSON(w, map[string]any{
		"success":       true,
		"transactionId": transactionID,
		"redirectUrl":   checkout.RedirectURL,
	})
}

// handleOrderStatus reports whether a settled or in-flight order exists for
// the transaction. The storefront polls it while waiting for the webhook.
func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Repository == nil {
		http.Error(w, "repository unavailable", http.StatusServiceUnavailable)
		return
	}

	transactionID := r.URL.Query().Get("transactionId")
	if transactionID == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Transaction ID is required."})
		return
	}

	order, err := s.deps.Repository.GetOrderByTransactionID(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeJSON(w, map[string]any{"success": true, "orderFound": false})
			return
		}
		s.logger.Error("failed checking order status", "error", err, "transaction_id", transactionID)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal server error."})
		return
	}

	found := order.Status == repo.OrderCompleted || order.Status == repo.OrderProcessing
	writeJSON(w, map[string]any{"success": true, "orderFound": found})
}

func (s *Server) handleWebhookEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Audit == nil {
		http.Error(w, "audit store unavailable", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONStatus(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid limit."})
			return
		}
		limit = parsed
	}

	events, err := s.deps.Audit.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed listing webhook events", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal server error."})
		return
	}

	writeJSON(w, map[string]any{
		"success": true,
		"count":   len(events),
		"events":  events,
	})
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Pages == nil {
		http.Error(w, "page cache unavailable", http.StatusServiceUnavailable)
		return
	}

	s.deps.Pages.Invalidate(r.Context(), "/", "/order", "/admin")
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error, entity string) {
	if errors.Is(err, repo.ErrNotFound) {
		writeJSONStatus(w, http.StatusNotFound, map[string]any{"success": false, "message": "User or product not found."})
		return
	}
	s.logger.Error("failed resolving "+entity, "error", err)
	writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Internal server error."})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
