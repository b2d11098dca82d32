// Package handlers wires the webhook pipeline: authenticate (done upstream),
// deduplicate, decode, resolve, materialize, commit atomically, then hand the
// settled order to the side-effect worker.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"topup-store/internal/audit"
	"topup-store/internal/gateway"
	"topup-store/internal/ledger"
	"topup-store/internal/metrics"
	"topup-store/internal/repo"
	"topup-store/internal/txid"
)

// Webhook processing outcomes, used for metrics and the audit archive.
const (
	outcomeCompleted      = "completed"
	outcomeFailed         = "failed"
	outcomeDuplicate      = "duplicate"
	outcomeIgnoredState   = "ignored_nonterminal"
	outcomeMalformedID    = "malformed_transaction_id"
	outcomeEntityNotFound = "entity_not_found"
	outcomeCommitFailed   = "commit_failed"
	outcomeBadPayload     = "bad_payload"
)

// EventRecorder archives webhook deliveries for operator reconciliation.
type EventRecorder interface {
	Record(ctx context.Context, evt audit.Event) error
}

// PaymentWebhookProcessor turns authenticated gateway callbacks into settled
// orders. It is the single source of truth for creating orders.
type PaymentWebhookProcessor struct {
	store    repo.Store
	recorder EventRecorder
	settled  chan<- OrderSettled
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPaymentWebhookProcessor creates the processor. Settled orders are
// published on the given channel for the side-effect worker.
func NewPaymentWebhookProcessor(store repo.Store, recorder EventRecorder, settled chan<- OrderSettled, metricRegistry *metrics.Metrics, logger *slog.Logger) *PaymentWebhookProcessor {
	return &PaymentWebhookProcessor{
		store:    store,
		recorder: recorder,
		settled:  settled,
		metrics:  metricRegistry,
		logger:   logger.With("component", "payment_webhook"),
	}
}

type webhookEnvelope struct {
	Payload struct {
		MerchantOrderID string `json:"merchantOrderId"`
		Amount          int64  `json:"amount"`
		State           string `json:"state"`
	} `json:"payload"`
}

// HandlePaymentEvent implements gateway.WebhookProcessor.
func (p *PaymentWebhookProcessor) HandlePaymentEvent(ctx context.Context, event gateway.WebhookEvent) error {
	start := time.Now()

	var env webhookEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		p.finish(ctx, event, ledger.PaymentEvent{}, outcomeBadPayload, start)
		return fmt.Errorf("decode webhook payload: %w", err)
	}

	evt := ledger.PaymentEvent{
		TransactionID: env.Payload.MerchantOrderID,
		AmountPaise:   env.Payload.Amount,
		State:         env.Payload.State,
	}
	logger := p.logger.With("transaction_id", evt.TransactionID)

	// Duplicate-delivery fast path. The unique index on transaction_id
	// still guards the race between two in-flight deliveries.
	exists, err := p.store.OrderExists(ctx, evt.TransactionID)
	if err != nil {
		p.finish(ctx, event, evt, outcomeCommitFailed, start)
		return fmt.Errorf("check existing order: %w", err)
	}
	if exists {
		logger.Info("order already processed")
		p.finish(ctx, event, evt, outcomeDuplicate, start)
		return nil
	}

	decoded, err := txid.Decode(evt.TransactionID)
	if err != nil {
		logger.Error("invalid transaction id format", "error", err)
		p.finish(ctx, event, evt, outcomeMalformedID, start)
		return err
	}

	status, terminal := ledger.TerminalStatus(evt.State)
	if !terminal {
		logger.Info("ignoring non-terminal payment state", "state", evt.State)
		p.finish(ctx, event, evt, outcomeIgnoredState, start)
		return nil
	}

	product, err := p.store.GetProductByID(ctx, decoded.ProductID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Error("product not found", "product_id", decoded.ProductID)
			p.finish(ctx, event, evt, outcomeEntityNotFound, start)
		} else {
			p.finish(ctx, event, evt, outcomeCommitFailed, start)
		}
		return err
	}

	user, err := p.store.GetUserByGamingID(ctx, decoded.GamingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			logger.Error("user not found", "gaming_id", decoded.GamingID)
			p.finish(ctx, event, evt, outcomeEntityNotFound, start)
		} else {
			p.finish(ctx, event, evt, outcomeCommitFailed, start)
		}
		return err
	}

	order := ledger.MaterializeOrder(evt, status, *user, *product)
	fx := ledger.ComputeEffects(order, *product)

	inserted, err := p.store.FinalizeOrder(ctx, order, fx)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateOrder) {
			// A concurrent delivery won the insert race.
			logger.Info("order finalized by concurrent delivery")
			p.finish(ctx, event, evt, outcomeDuplicate, start)
			return nil
		}
		p.finish(ctx, event, evt, outcomeCommitFailed, start)
		return fmt.Errorf("finalize order: %w", err)
	}

	p.metrics.OrdersFinalized.WithLabelValues(string(inserted.Status)).Inc()
	outcome := outcomeFailed
	if inserted.Status == repo.OrderCompleted {
		outcome = outcomeCompleted
	}
	p.finish(ctx, event, evt, outcome, start)

	p.publish(OrderSettled{Order: *inserted, User: *user, Product: *product})

	logger.Info("webhook processed", "status", inserted.Status, "coins_used", inserted.CoinsUsed)
	return nil
}

func (p *PaymentWebhookProcessor) publish(evt OrderSettled) {
	if p.settled == nil {
		return
	}
	select {
	case p.settled <- evt:
	default:
		p.logger.Warn("side effect queue full, dropping event", "transaction_id", evt.Order.TransactionID)
		p.metrics.Errors.WithLabelValues("side_effect_queue").Inc()
	}
}

// finish records metrics and archives the delivery. The archive write is best
// effort; losing it never affects the webhook response.
func (p *PaymentWebhookProcessor) finish(ctx context.Context, event gateway.WebhookEvent, evt ledger.PaymentEvent, outcome string, start time.Time) {
	p.metrics.WebhookEvents.WithLabelValues(outcome).Inc()
	p.metrics.WebhookLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if p.recorder == nil {
		return
	}
	err := p.recorder.Record(ctx, audit.Event{
		TransactionID: evt.TransactionID,
		State:         evt.State,
		AmountPaise:   evt.AmountPaise,
		Outcome:       outcome,
		Payload:       string(event.Payload),
		ReceivedAt:    event.ReceivedAt,
	})
	if err != nil {
		p.logger.Warn("failed archiving webhook event", "error", err)
		p.metrics.Errors.WithLabelValues("audit").Inc()
	}
}
