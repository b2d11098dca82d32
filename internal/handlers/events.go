package handlers

import (
	"context"
	"log/slog"

	"topup-store/internal/ledger"
	"topup-store/internal/metrics"
	"topup-store/internal/push"
	"topup-store/internal/repo"
)

// OrderSettled is published after an order and its ledger effects commit.
// Everything downstream of it is best effort and outside the transaction
// boundary.
type OrderSettled struct {
	Order   repo.Order
	User    repo.User
	Product repo.Product
}

// PushSender delivers a push notification.
type PushSender interface {
	Send(ctx context.Context, msg push.Message) error
}

// PageInvalidator marks cached page renders stale.
type PageInvalidator interface {
	Invalidate(ctx context.Context, paths ...string)
}

// Promoter assigns cosmetic visual IDs.
type Promoter interface {
	Promote(ctx context.Context, user repo.User) error
}

// SideEffectWorker consumes settled orders and runs their post-commit side
// effects: push notification, page-cache invalidation, and the visual-ID
// promotion. Failures are logged and never retried.
type SideEffectWorker struct {
	events    <-chan OrderSettled
	push      PushSender
	pages     PageInvalidator
	promoter  Promoter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	storeName string
	baseURL   string
}

// SideEffectConfig carries presentation details for outbound notifications.
type SideEffectConfig struct {
	StoreName string
	BaseURL   string
}

// NewSideEffectWorker creates the worker reading from events.
func NewSideEffectWorker(events <-chan OrderSettled, pushSender PushSender, pages PageInvalidator, promoter Promoter, cfg SideEffectConfig, metricRegistry *metrics.Metrics, logger *slog.Logger) *SideEffectWorker {
	return &SideEffectWorker{
		events:    events,
		push:      pushSender,
		pages:     pages,
		promoter:  promoter,
		metrics:   metricRegistry,
		logger:    logger.With("component", "side_effects"),
		storeName: cfg.StoreName,
		baseURL:   cfg.BaseURL,
	}
}

// Run consumes events until the context is cancelled.
func (w *SideEffectWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.events:
			if !ok {
				return
			}
			w.process(ctx, evt)
		}
	}
}

func (w *SideEffectWorker) process(ctx context.Context, evt OrderSettled) {
	// Stale-page invalidation applies to both outcomes: the order listing
	// shows failed purchases too.
	if w.pages != nil {
		w.pages.Invalidate(ctx, "/", "/order", "/admin")
	}

	if evt.Order.Status != repo.OrderCompleted {
		return
	}

	if w.push != nil && evt.User.FCMToken != nil && *evt.User.FCMToken != "" {
		msg := push.Message{
			Token:    *evt.User.FCMToken,
			Title:    w.storeName + ": Purchase Successful!",
			Body:     "Your purchase of " + evt.Product.Name + " for ₹" + ledger.FormatRupees(evt.Order.FinalPricePaise) + " was successful!",
			ImageURL: evt.Product.ImageURL,
			Link:     w.baseURL,
		}
		if err := w.push.Send(ctx, msg); err != nil {
			w.logger.Warn("push delivery failed", "transaction_id", evt.Order.TransactionID, "error", err)
			w.metrics.Errors.WithLabelValues("push").Inc()
		}
	}

	if w.promoter != nil && !evt.Product.IsCoinProduct {
		if err := w.promoter.Promote(ctx, evt.User); err != nil {
			w.logger.Warn("visual id promotion failed", "gaming_id", evt.User.GamingID, "error", err)
			w.metrics.Errors.WithLabelValues("visualid").Inc()
		}
	}
}
