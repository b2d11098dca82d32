package repo

import "time"

// OrderStatus is the terminal outcome recorded for an order. Orders are
// created once in their final state and never transition.
type OrderStatus string

const (
	OrderCompleted OrderStatus = "Completed"
	OrderFailed    OrderStatus = "Failed"
	// OrderProcessing and OrderPendingUTR exist only in data written by the
	// legacy direct-charge flow; the webhook path never produces them.
	OrderProcessing OrderStatus = "Processing"
	OrderPendingUTR OrderStatus = "Pending UTR"
)

// User represents the users table row. A user is identified externally by
// their gaming ID; the coin balance is the wallet mutated by order settlement.
type User struct {
	ID             string
	GamingID       string
	Coins          int64
	ReferralCode   *string
	ReferredByCode *string
	FCMToken       *string
	VisualGamingID *string
	VisualIDSetAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Product represents the products table row. All monetary values are in
// paise. Quantity is the number of coins granted when IsCoinProduct is set;
// CoinsApplicable caps the coin discount on a normal purchase.
type Product struct {
	ID              string
	Name            string
	PricePaise      int64
	ImageURL        string
	IsCoinProduct   bool
	Quantity        int64
	CoinsApplicable int64
	IsAvailable     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Order is the system of record for a purchase attempt. Product fields are
// denormalised at creation time so later catalog edits cannot change what the
// customer saw.
type Order struct {
	ID                    string
	TransactionID         string
	UserID                string
	GamingID              string
	ProductID             string
	ProductName           string
	ProductPricePaise     int64
	ProductImageURL       string
	PaymentMethod         string
	Status                OrderStatus
	CoinsUsed             int64
	FinalPricePaise       int64
	CoinsAtTimeOfPurchase int64
	ReferralCode          *string
	IsCoinProduct         bool
	IsPixelTracked        bool
	CreatedAt             time.Time
}

// Notification is an in-app message tied to a gaming ID.
type Notification struct {
	ID        string
	GamingID  string
	Message   string
	ImageURL  string
	IsRead    bool
	CreatedAt time.Time
}

// LegacyUser is the referral ledger row, keyed by referral code.
type LegacyUser struct {
	ReferralCode       string
	WalletBalancePaise int64
	UpdatedAt          time.Time
}

// VisualIDPromotion logs a cosmetic display-ID assignment.
type VisualIDPromotion struct {
	ID          string
	UserID      string
	OldGamingID string
	NewGamingID string
	CreatedAt   time.Time
}

// OrderEffects is the set of ledger side effects applied atomically with the
// order insert. Zero values mean "no effect" for the respective field.
type OrderEffects struct {
	// CoinsDelta is applied to the purchaser's balance: positive for coin
	// product credits, negative for coin discounts.
	CoinsDelta int64
	// ReferralCode names the legacy_users row to credit; empty skips the credit.
	ReferralCode string
	// ReferralRewardPaise is added to the referrer's wallet balance.
	ReferralRewardPaise int64
	// Notification is the in-app message inserted with the order.
	Notification Notification
}
