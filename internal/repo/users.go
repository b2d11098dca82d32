package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetUserByGamingID returns the user registered under the given gaming ID.
func (r *Repository) GetUserByGamingID(ctx context.Context, gamingID string) (*User, error) {
	const q = `
SELECT id, gaming_id, coins, referral_code, referred_by_code, fcm_token,
       visual_gaming_id, visual_id_set_at, created_at, updated_at
FROM users
WHERE gaming_id = $1
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, gamingID)
	var user User
	if err := row.Scan(&user.ID, &user.GamingID, &user.Coins, &user.ReferralCode, &user.ReferredByCode, &user.FCMToken, &user.VisualGamingID, &user.VisualIDSetAt, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", gamingID, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by gaming id: %w", err)
	}
	return &user, nil
}

// GetLegacyUserByReferralCode returns the referral ledger row for a code.
func (r *Repository) GetLegacyUserByReferralCode(ctx context.Context, code string) (*LegacyUser, error) {
	const q = `
SELECT referral_code, wallet_balance_paise, updated_at
FROM legacy_users
WHERE referral_code = $1
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, code)
	var lu LegacyUser
	if err := row.Scan(&lu.ReferralCode, &lu.WalletBalancePaise, &lu.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("legacy user %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("get legacy user: %w", err)
	}
	return &lu, nil
}
