package ledger

import (
	"strings"
	"testing"

	"topup-store/internal/repo"
)

func strPtr(s string) *string { return &s }

func TestTerminalStatus(t *testing.T) {
	if status, ok := TerminalStatus("COMPLETED"); !ok || status != repo.OrderCompleted {
		t.Fatalf("expected Completed, got %s ok=%v", status, ok)
	}
	if status, ok := TerminalStatus("FAILED"); !ok || status != repo.OrderFailed {
		t.Fatalf("expected Failed, got %s ok=%v", status, ok)
	}
	for _, state := range []string{"PENDING", "PROCESSING", "", "completed"} {
		if _, ok := TerminalStatus(state); ok {
			t.Fatalf("expected %q to be non-terminal", state)
		}
	}
}

func TestCoinsUsedCappedAtBalance(t *testing.T) {
	user := repo.User{Coins: 40}
	product := repo.Product{CoinsApplicable: 100}
	if got := CoinsUsed(user, product); got != 40 {
		t.Fatalf("expected 40 coins used, got %d", got)
	}
}

func TestCoinsUsedCappedAtApplicable(t *testing.T) {
	user := repo.User{Coins: 80}
	product := repo.Product{CoinsApplicable: 50}
	if got := CoinsUsed(user, product); got != 50 {
		t.Fatalf("expected 50 coins used, got %d", got)
	}
}

func TestCoinsUsedZeroForCoinProduct(t *testing.T) {
	user := repo.User{Coins: 80}
	product := repo.Product{IsCoinProduct: true, CoinsApplicable: 50}
	if got := CoinsUsed(user, product); got != 0 {
		t.Fatalf("expected 0 coins used for coin product, got %d", got)
	}
}

func TestMaterializeOrderSnapshotsEntities(t *testing.T) {
	user := repo.User{
		ID:             "u1",
		GamingID:       "user123",
		Coins:          80,
		ReferredByCode: strPtr("REF42"),
	}
	product := repo.Product{
		ID:              "prod456",
		Name:            "1000 Diamonds",
		PricePaise:      15000,
		ImageURL:        "https://cdn.example/diamonds.png",
		CoinsApplicable: 50,
	}
	evt := PaymentEvent{TransactionID: "1699999999-user123-prod456", AmountPaise: 10000, State: StateCompleted}

	order := MaterializeOrder(evt, repo.OrderCompleted, user, product)

	if order.CoinsUsed != 50 {
		t.Fatalf("expected coins used 50, got %d", order.CoinsUsed)
	}
	if order.FinalPricePaise != 10000 {
		t.Fatalf("expected final price 10000 paise, got %d", order.FinalPricePaise)
	}
	if order.Status != repo.OrderCompleted {
		t.Fatalf("expected Completed, got %s", order.Status)
	}
	if order.CoinsAtTimeOfPurchase != 80 {
		t.Fatalf("expected coin snapshot 80, got %d", order.CoinsAtTimeOfPurchase)
	}
	if order.ProductName != "1000 Diamonds" || order.ProductPricePaise != 15000 {
		t.Fatalf("product snapshot mismatch: %+v", order)
	}
	if order.ReferralCode == nil || *order.ReferralCode != "REF42" {
		t.Fatalf("expected referral code snapshot REF42, got %v", order.ReferralCode)
	}
}

func TestComputeEffectsCompletedWithCoins(t *testing.T) {
	product := repo.Product{Name: "1000 Diamonds", CoinsApplicable: 50}
	order := repo.Order{
		GamingID:        "user123",
		Status:          repo.OrderCompleted,
		CoinsUsed:       50,
		FinalPricePaise: 10000,
		ReferralCode:    strPtr("REF42"),
	}

	fx := ComputeEffects(order, product)

	if fx.CoinsDelta != -50 {
		t.Fatalf("expected coin delta -50, got %d", fx.CoinsDelta)
	}
	if fx.ReferralCode != "REF42" {
		t.Fatalf("expected referral code REF42, got %s", fx.ReferralCode)
	}
	if fx.ReferralRewardPaise != 5000 {
		t.Fatalf("expected referral reward 5000 paise, got %d", fx.ReferralRewardPaise)
	}
	if !strings.Contains(fx.Notification.Message, "successful") {
		t.Fatalf("unexpected notification: %s", fx.Notification.Message)
	}
}

func TestComputeEffectsReferralRewardIsHalfFinalAmount(t *testing.T) {
	// finalAmount 500 rupees, referred user: referrer earns exactly 250.
	order := repo.Order{
		Status:          repo.OrderCompleted,
		FinalPricePaise: 50000,
		ReferralCode:    strPtr("REF1"),
	}
	fx := ComputeEffects(order, repo.Product{Name: "Pack"})
	if fx.ReferralRewardPaise != 25000 {
		t.Fatalf("expected 25000 paise reward, got %d", fx.ReferralRewardPaise)
	}
}

func TestComputeEffectsCoinProductCreditsQuantity(t *testing.T) {
	product := repo.Product{Name: "50 Coins", IsCoinProduct: true, Quantity: 50}
	order := repo.Order{
		GamingID:        "user123",
		Status:          repo.OrderCompleted,
		FinalPricePaise: 5000,
		IsCoinProduct:   true,
	}

	fx := ComputeEffects(order, product)

	if fx.CoinsDelta != 50 {
		t.Fatalf("expected coin credit 50, got %d", fx.CoinsDelta)
	}
	if !strings.Contains(fx.Notification.Message, "coins have been added") {
		t.Fatalf("unexpected notification: %s", fx.Notification.Message)
	}
}

func TestComputeEffectsFailedHasNoLedgerMutation(t *testing.T) {
	order := repo.Order{
		GamingID:        "user123",
		Status:          repo.OrderFailed,
		CoinsUsed:       50,
		FinalPricePaise: 10000,
		ReferralCode:    strPtr("REF42"),
	}

	fx := ComputeEffects(order, repo.Product{Name: "1000 Diamonds"})

	if fx.CoinsDelta != 0 {
		t.Fatalf("expected no coin delta on failed order, got %d", fx.CoinsDelta)
	}
	if fx.ReferralCode != "" || fx.ReferralRewardPaise != 0 {
		t.Fatalf("expected no referral credit on failed order, got %+v", fx)
	}
	if !strings.Contains(fx.Notification.Message, "failed") {
		t.Fatalf("expected failure notification, got %s", fx.Notification.Message)
	}
}

func TestFormatRupees(t *testing.T) {
	cases := []struct {
		paise int64
		want  string
	}{
		{10000, "100"},
		{10050, "100.50"},
		{5, "0.05"},
		{-2500, "-25"},
	}
	for _, tc := range cases {
		if got := FormatRupees(tc.paise); got != tc.want {
			t.Fatalf("FormatRupees(%d) = %s, want %s", tc.paise, got, tc.want)
		}
	}
}
