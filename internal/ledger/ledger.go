// Package ledger computes the order record and financial side effects of a
// settled payment. Everything here is pure computation on resolved entities;
// persistence and atomicity live in the repo layer.
package ledger

import (
	"fmt"

	"topup-store/internal/repo"
)

// Gateway-reported terminal payment states.
const (
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
)

// Referrers earn a flat 50% of the final charged amount.
const referralRewardPercent = 50

// PaymentEvent is the settled-payment data consumed from the gateway
// callback. Amount is in paise.
type PaymentEvent struct {
	TransactionID string
	AmountPaise   int64
	State         string
}

// TerminalStatus maps a gateway payment state onto an order status. Non
// terminal states (pending, unknown) return false: no order is materialized
// for them, so the later terminal delivery can still settle the purchase.
func TerminalStatus(state string) (repo.OrderStatus, bool) {
	switch state {
	case StateCompleted:
		return repo.OrderCompleted, true
	case StateFailed:
		return repo.OrderFailed, true
	default:
		return "", false
	}
}

// CoinsUsed computes the coin discount applied to a purchase: zero for coin
// products, otherwise the user's balance capped by the product's limit. Never
// taken from client or gateway input.
func CoinsUsed(user repo.User, product repo.Product) int64 {
	if product.IsCoinProduct {
		return 0
	}
	return min(user.Coins, product.CoinsApplicable)
}

// MaterializeOrder builds the immutable order record for a terminal payment
// event. Product fields and the user's pre-mutation coin balance are
// snapshotted so the record stays stable under later catalog or wallet edits.
func MaterializeOrder(evt PaymentEvent, status repo.OrderStatus, user repo.User, product repo.Product) repo.Order {
	return repo.Order{
		TransactionID:         evt.TransactionID,
		UserID:                user.ID,
		GamingID:              user.GamingID,
		ProductID:             product.ID,
		ProductName:           product.Name,
		ProductPricePaise:     product.PricePaise,
		ProductImageURL:       product.ImageURL,
		PaymentMethod:         "UPI",
		Status:                status,
		CoinsUsed:             CoinsUsed(user, product),
		FinalPricePaise:       evt.AmountPaise,
		CoinsAtTimeOfPurchase: user.Coins,
		ReferralCode:          user.ReferredByCode,
		IsCoinProduct:         product.IsCoinProduct,
	}
}

// ComputeEffects derives the ledger side effects for an order. A failed order
// carries only the failure notification; coin and referral mutations happen
// exclusively on completion.
func ComputeEffects(order repo.Order, product repo.Product) repo.OrderEffects {
	fx := repo.OrderEffects{
		Notification: repo.Notification{
			GamingID: order.GamingID,
			ImageURL: product.ImageURL,
		},
	}

	if order.Status != repo.OrderCompleted {
		fx.Notification.Message = fmt.Sprintf("Your payment of ₹%s for %s failed.", FormatRupees(order.FinalPricePaise), product.Name)
		return fx
	}

	switch {
	case product.IsCoinProduct:
		fx.CoinsDelta = product.Quantity
	case order.CoinsUsed > 0:
		fx.CoinsDelta = -order.CoinsUsed
	}

	if order.ReferralCode != nil && *order.ReferralCode != "" {
		fx.ReferralCode = *order.ReferralCode
		fx.ReferralRewardPaise = order.FinalPricePaise * referralRewardPercent / 100
	}

	fx.Notification.Message = fmt.Sprintf("Your purchase of %s for ₹%s was successful!", product.Name, FormatRupees(order.FinalPricePaise))
	if product.IsCoinProduct {
		fx.Notification.Message += " The coins have been added to your account."
	}
	return fx
}

// FormatRupees renders a paise amount in rupees, dropping the fraction when
// the amount is whole.
func FormatRupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	if paise%100 == 0 {
		return fmt.Sprintf("%s%d", sign, paise/100)
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}
