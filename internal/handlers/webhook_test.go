package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"topup-store/internal/audit"
	"topup-store/internal/gateway"
	"topup-store/internal/metrics"
	"topup-store/internal/push"
	"topup-store/internal/repo"
	"topup-store/internal/txid"
)

func strPtr(s string) *string { return &s }

func event(payload string) gateway.WebhookEvent {
	return gateway.WebhookEvent{Payload: []byte(payload), ReceivedAt: time.Now()}
}

func completedPayload() string {
	return `{"payload":{"merchantOrderId":"1699999999-user123-prod456","amount":10000,"state":"COMPLETED"}}`
}

func newFixture() (*fakeStore, chan OrderSettled, *PaymentWebhookProcessor) {
	store := &fakeStore{
		users: map[string]*repo.User{
			"user123": {ID: "u1", GamingID: "user123", Coins: 80, ReferredByCode: strPtr("REF42")},
		},
		products: map[string]*repo.Product{
			"prod456": {ID: "prod456", Name: "1000 Diamonds", PricePaise: 15000, CoinsApplicable: 50, ImageURL: "https://cdn.example/d.png"},
		},
		orders:         map[string]*repo.Order{},
		legacyBalances: map[string]int64{},
	}
	settled := make(chan OrderSettled, 8)
	processor := NewPaymentWebhookProcessor(store, &fakeRecorder{}, settled, metrics.Registry("test"), slog.Default())
	return store, settled, processor
}

func TestCompletedOrderAppliesLedgerEffects(t *testing.T) {
	store, settled, processor := newFixture()

	if err := processor.HandlePaymentEvent(context.Background(), event(completedPayload())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, ok := store.orders["1699999999-user123-prod456"]
	if !ok {
		t.Fatal("expected order to be recorded")
	}
	if order.Status != repo.OrderCompleted {
		t.Fatalf("expected Completed, got %s", order.Status)
	}
	if order.CoinsUsed != 50 {
		t.Fatalf("expected coins used 50, got %d", order.CoinsUsed)
	}
	if order.FinalPricePaise != 10000 {
		t.Fatalf("expected final price 10000 paise, got %d", order.FinalPricePaise)
	}
	if order.CoinsAtTimeOfPurchase != 80 {
		t.Fatalf("expected coin snapshot 80, got %d", order.CoinsAtTimeOfPurchase)
	}

	if got := store.users["user123"].Coins; got != 30 {
		t.Fatalf("expected coins reduced to 30, got %d", got)
	}
	if got := store.legacyBalances["REF42"]; got != 5000 {
		t.Fatalf("expected referral credit 5000 paise, got %d", got)
	}
	if len(store.notifications) != 1 || !strings.Contains(store.notifications[0].Message, "successful") {
		t.Fatalf("expected one success notification, got %+v", store.notifications)
	}

	select {
	case evt := <-settled:
		if evt.Order.TransactionID != "1699999999-user123-prod456" {
			t.Fatalf("unexpected settled event: %+v", evt.Order)
		}
	default:
		t.Fatal("expected settled event to be published")
	}
}

func TestFailedOrderLeavesLedgerUntouched(t *testing.T) {
	store, _, processor := newFixture()

	payload := `{"payload":{"merchantOrderId":"1699999999-user123-prod456","amount":10000,"state":"FAILED"}}`
	if err := processor.HandlePaymentEvent(context.Background(), event(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := store.orders["1699999999-user123-prod456"]
	if order == nil || order.Status != repo.OrderFailed {
		t.Fatalf("expected Failed order, got %+v", order)
	}
	if got := store.users["user123"].Coins; got != 80 {
		t.Fatalf("expected coins unchanged at 80, got %d", got)
	}
	if len(store.legacyBalances) != 0 {
		t.Fatalf("expected no referral credit, got %+v", store.legacyBalances)
	}
	if len(store.notifications) != 1 || !strings.Contains(store.notifications[0].Message, "failed") {
		t.Fatalf("expected one failure notification, got %+v", store.notifications)
	}
}

func TestCoinProductCreditsCoins(t *testing.T) {
	store, _, processor := newFixture()
	store.products["coin50"] = &repo.Product{ID: "coin50", Name: "50 Coins", PricePaise: 5000, IsCoinProduct: true, Quantity: 50}

	payload := `{"payload":{"merchantOrderId":"1699999999-user123-coin50","amount":5000,"state":"COMPLETED"}}`
	if err := processor.HandlePaymentEvent(context.Background(), event(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.users["user123"].Coins; got != 130 {
		t.Fatalf("expected coins credited to 130, got %d", got)
	}
	order := store.orders["1699999999-user123-coin50"]
	if order.CoinsUsed != 0 {
		t.Fatalf("expected no coins used on coin product, got %d", order.CoinsUsed)
	}
}

func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	store, _, processor := newFixture()

	for i := 0; i < 3; i++ {
		if err := processor.HandlePaymentEvent(context.Background(), event(completedPayload())); err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i, err)
		}
	}

	if store.finalizeCalls != 1 {
		t.Fatalf("expected exactly one finalize, got %d", store.finalizeCalls)
	}
	if got := store.users["user123"].Coins; got != 30 {
		t.Fatalf("expected ledger applied exactly once (coins 30), got %d", got)
	}
	if got := store.legacyBalances["REF42"]; got != 5000 {
		t.Fatalf("expected referral credited exactly once, got %d", got)
	}
}

func TestInsertRaceDuplicateIsNoOp(t *testing.T) {
	store, settled, processor := newFixture()
	// The existence check misses, but the unique index rejects the insert.
	store.finalizeErr = fmt.Errorf("finalize order: %w", repo.ErrDuplicateOrder)

	if err := processor.HandlePaymentEvent(context.Background(), event(completedPayload())); err != nil {
		t.Fatalf("expected duplicate insert to be treated as success, got %v", err)
	}
	select {
	case <-settled:
		t.Fatal("expected no settled event for duplicate insert")
	default:
	}
}

func TestMalformedTransactionID(t *testing.T) {
	store, _, processor := newFixture()

	payload := `{"payload":{"merchantOrderId":"1699999999-abc","amount":10000,"state":"COMPLETED"}}`
	err := processor.HandlePaymentEvent(context.Background(), event(payload))
	if !errors.Is(err, txid.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if len(store.orders) != 0 {
		t.Fatal("expected no order for malformed transaction id")
	}
}

func TestMissingEntitiesFailWithoutMutation(t *testing.T) {
	store, _, processor := newFixture()

	payload := `{"payload":{"merchantOrderId":"1699999999-user123-ghost","amount":10000,"state":"COMPLETED"}}`
	if err := processor.HandlePaymentEvent(context.Background(), event(payload)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing product, got %v", err)
	}

	payload = `{"payload":{"merchantOrderId":"1699999999-ghost-prod456","amount":10000,"state":"COMPLETED"}}`
	if err := processor.HandlePaymentEvent(context.Background(), event(payload)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}

	if len(store.orders) != 0 || store.users["user123"].Coins != 80 {
		t.Fatal("expected no mutation on missing entities")
	}
}

func TestNonTerminalStateIsAcknowledgedWithoutOrder(t *testing.T) {
	store, settled, processor := newFixture()

	payload := `{"payload":{"merchantOrderId":"1699999999-user123-prod456","amount":10000,"state":"PENDING"}}`
	if err := processor.HandlePaymentEvent(context.Background(), event(payload)); err != nil {
		t.Fatalf("expected non-terminal state to be acknowledged, got %v", err)
	}
	if len(store.orders) != 0 {
		t.Fatal("expected no order for non-terminal state")
	}
	select {
	case <-settled:
		t.Fatal("expected no settled event for non-terminal state")
	default:
	}

	// The terminal delivery for the same transaction must still settle.
	if err := processor.HandlePaymentEvent(context.Background(), event(completedPayload())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.orders) != 1 {
		t.Fatal("expected terminal delivery to create the order")
	}
}

func TestCommitFailureRollsEverythingBack(t *testing.T) {
	store, settled, processor := newFixture()
	store.finalizeErr = errors.New("connection reset")

	err := processor.HandlePaymentEvent(context.Background(), event(completedPayload()))
	if err == nil {
		t.Fatal("expected commit failure to surface")
	}

	if len(store.orders) != 0 {
		t.Fatal("expected no order after failed commit")
	}
	if got := store.users["user123"].Coins; got != 80 {
		t.Fatalf("expected coins unchanged after failed commit, got %d", got)
	}
	if len(store.legacyBalances) != 0 {
		t.Fatal("expected no referral credit after failed commit")
	}
	select {
	case <-settled:
		t.Fatal("expected no settled event after failed commit")
	default:
	}

	// The gateway retries; with the fault cleared the retry settles cleanly.
	store.finalizeErr = nil
	if err := processor.HandlePaymentEvent(context.Background(), event(completedPayload())); err != nil {
		t.Fatalf("retry after commit failure: %v", err)
	}
	if len(store.orders) != 1 {
		t.Fatal("expected retry to settle the order")
	}
}

func TestSideEffectWorkerSendsPushAndInvalidates(t *testing.T) {
	pushSender := &fakePush{}
	pages := &fakePages{}
	promoter := &fakePromoter{}
	worker := NewSideEffectWorker(nil, pushSender, pages, promoter, SideEffectConfig{StoreName: "Top-up Store", BaseURL: "https://shop.example"}, metrics.Registry("test"), slog.Default())

	evt := OrderSettled{
		Order:   repo.Order{TransactionID: "t1", Status: repo.OrderCompleted, FinalPricePaise: 10000},
		User:    repo.User{ID: "u1", GamingID: "user123", FCMToken: strPtr("tok-1")},
		Product: repo.Product{Name: "1000 Diamonds", ImageURL: "https://cdn.example/d.png"},
	}
	worker.process(context.Background(), evt)

	if len(pushSender.sent) != 1 {
		t.Fatalf("expected one push, got %d", len(pushSender.sent))
	}
	msg := pushSender.sent[0]
	if msg.Token != "tok-1" || !strings.Contains(msg.Body, "1000 Diamonds") || !strings.Contains(msg.Body, "₹100") {
		t.Fatalf("unexpected push message: %+v", msg)
	}
	if len(pages.paths) != 3 {
		t.Fatalf("expected 3 invalidated paths, got %v", pages.paths)
	}
	if promoter.calls != 1 {
		t.Fatalf("expected one promotion attempt, got %d", promoter.calls)
	}
}

func TestSideEffectWorkerSkipsPushForFailedOrders(t *testing.T) {
	pushSender := &fakePush{}
	pages := &fakePages{}
	promoter := &fakePromoter{}
	worker := NewSideEffectWorker(nil, pushSender, pages, promoter, SideEffectConfig{}, metrics.Registry("test"), slog.Default())

	worker.process(context.Background(), OrderSettled{
		Order: repo.Order{Status: repo.OrderFailed},
		User:  repo.User{FCMToken: strPtr("tok-1")},
	})

	if len(pushSender.sent) != 0 {
		t.Fatal("expected no push for failed order")
	}
	if promoter.calls != 0 {
		t.Fatal("expected no promotion for failed order")
	}
	if len(pages.paths) != 3 {
		t.Fatalf("expected invalidation even for failed order, got %v", pages.paths)
	}
}

func TestSideEffectWorkerSkipsPromotionForCoinProducts(t *testing.T) {
	promoter := &fakePromoter{}
	worker := NewSideEffectWorker(nil, &fakePush{}, &fakePages{}, promoter, SideEffectConfig{}, metrics.Registry("test"), slog.Default())

	worker.process(context.Background(), OrderSettled{
		Order:   repo.Order{Status: repo.OrderCompleted},
		User:    repo.User{GamingID: "user123"},
		Product: repo.Product{IsCoinProduct: true},
	})

	if promoter.calls != 0 {
		t.Fatal("expected no promotion for coin product purchase")
	}
}

// --- fakes ---

type fakeRecorder struct {
	events []audit.Event
}

func (f *fakeRecorder) Record(ctx context.Context, evt audit.Event) error {
	f.events = append(f.events, evt)
	return nil
}

type fakePush struct {
	sent []push.Message
}

func (f *fakePush) Send(ctx context.Context, msg push.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakePages struct {
	paths []string
}

func (f *fakePages) Invalidate(ctx context.Context, paths ...string) {
	f.paths = append(f.paths, paths...)
}

type fakePromoter struct {
	calls int
}

func (f *fakePromoter) Promote(ctx context.Context, user repo.User) error {
	f.calls++
	return nil
}
