package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// OrderExists reports whether an order has been recorded for the transaction
// ID. This is the cheap duplicate-delivery check; the unique index on
// transaction_id remains the correctness backstop under concurrent delivery.
func (r *Repository) OrderExists(ctx context.Context, transactionID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM orders WHERE transaction_id = $1);`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("order exists: %w", err)
	}
	return exists, nil
}

// GetOrderByTransactionID retrieves an order by its transaction ID.
func (r *Repository) GetOrderByTransactionID(ctx context.Context, transactionID string) (*Order, error) {
	const q = `
SELECT id, transaction_id, user_id, gaming_id, product_id, product_name,
       product_price_paise, product_image_url, payment_method, status,
       coins_used, final_price_paise, coins_at_time_of_purchase,
       referral_code, is_coin_product, is_pixel_tracked, created_at
FROM orders
WHERE transaction_id = $1
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, transactionID)
	var o Order
	if err := row.Scan(&o.ID, &o.TransactionID, &o.UserID, &o.GamingID, &o.ProductID, &o.ProductName, &o.ProductPricePaise, &o.ProductImageURL, &o.PaymentMethod, &o.Status, &o.CoinsUsed, &o.FinalPricePaise, &o.CoinsAtTimeOfPurchase, &o.ReferralCode, &o.IsCoinProduct, &o.IsPixelTracked, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", transactionID, ErrNotFound)
		}
		return nil, fmt.Errorf("get order by transaction id: %w", err)
	}
	return &o, nil
}

// FinalizeOrder inserts the order and applies its ledger effects as one
// atomic unit: coin delta on the purchaser, referral wallet credit, and the
// in-app notification. Either everything commits or nothing does. A unique
// violation on the transaction ID maps to ErrDuplicateOrder.
func (r *Repository) FinalizeOrder(ctx context.Context, order Order, fx OrderEffects) (*Order, error) {
	inserted := order
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const insertOrder = `
INSERT INTO orders (transaction_id, user_id, gaming_id, product_id, product_name,
                    product_price_paise, product_image_url, payment_method, status,
                    coins_used, final_price_paise, coins_at_time_of_purchase,
                    referral_code, is_coin_product)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id, created_at;
`
		if err := tx.QueryRow(ctx, insertOrder,
			order.TransactionID,
			order.UserID,
			order.GamingID,
			order.ProductID,
			order.ProductName,
			order.ProductPricePaise,
			order.ProductImageURL,
			order.PaymentMethod,
			order.Status,
			order.CoinsUsed,
			order.FinalPricePaise,
			order.CoinsAtTimeOfPurchase,
			order.ReferralCode,
			order.IsCoinProduct,
		).Scan(&inserted.ID, &inserted.CreatedAt); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if fx.CoinsDelta != 0 {
			const adjustCoins = `
UPDATE users
SET coins = coins + $2, updated_at = NOW()
WHERE id = $1;
`
			ct, err := tx.Exec(ctx, adjustCoins, order.UserID, fx.CoinsDelta)
			if err != nil {
				return fmt.Errorf("adjust user coins: %w", err)
			}
			if ct.RowsAffected() == 0 {
				return fmt.Errorf("adjust user coins: user not found: %s", order.UserID)
			}
		}

		if fx.ReferralCode != "" && fx.ReferralRewardPaise > 0 {
			const creditReferrer = `
INSERT INTO legacy_users (referral_code, wallet_balance_paise, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (referral_code) DO UPDATE
SET wallet_balance_paise = legacy_users.wallet_balance_paise + EXCLUDED.wallet_balance_paise,
    updated_at = NOW();
`
			if _, err := tx.Exec(ctx, creditReferrer, fx.ReferralCode, fx.ReferralRewardPaise); err != nil {
				return fmt.Errorf("credit referrer: %w", err)
			}
		}

		const insertNotification = `
INSERT INTO notifications (gaming_id, message, image_url)
VALUES ($1, $2, $3);
`
		if _, err := tx.Exec(ctx, insertNotification,
			fx.Notification.GamingID,
			fx.Notification.Message,
			fx.Notification.ImageURL,
		); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}

		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("finalize order %s: %w", order.TransactionID, ErrDuplicateOrder)
		}
		return nil, fmt.Errorf("finalize order %s: %w", order.TransactionID, err)
	}

	r.logger.Debug("order finalized", "transaction_id", order.TransactionID, "status", order.Status)
	return &inserted, nil
}
