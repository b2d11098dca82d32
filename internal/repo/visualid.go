package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// VisualPromotionExists reports whether the gaming ID has ever taken part in
// a visual-ID promotion, on either side.
func (r *Repository) VisualPromotionExists(ctx context.Context, gamingID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM visual_id_promotions
    WHERE old_gaming_id = $1 OR new_gaming_id = $1
);
`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, gamingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("visual promotion exists: %w", err)
	}
	return exists, nil
}

// VisualIDInUse reports whether another user already displays the given ID.
func (r *Repository) VisualIDInUse(ctx context.Context, visualID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE visual_gaming_id = $1);`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, visualID).Scan(&exists); err != nil {
		return false, fmt.Errorf("visual id in use: %w", err)
	}
	return exists, nil
}

// PromoteVisualID assigns the visual ID to the user and logs the promotion in
// the same transaction, so the log and the assignment cannot drift apart.
func (r *Repository) PromoteVisualID(ctx context.Context, userID, oldGamingID, newGamingID string) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		const setVisual = `
UPDATE users
SET visual_gaming_id = $2, visual_id_set_at = NOW(), updated_at = NOW()
WHERE id = $1;
`
		ct, err := tx.Exec(ctx, setVisual, userID, newGamingID)
		if err != nil {
			return fmt.Errorf("set visual id: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("set visual id: user not found: %s", userID)
		}

		const logPromotion = `
INSERT INTO visual_id_promotions (user_id, old_gaming_id, new_gaming_id)
VALUES ($1, $2, $3);
`
		if _, err := tx.Exec(ctx, logPromotion, userID, oldGamingID, newGamingID); err != nil {
			return fmt.Errorf("log visual id promotion: %w", err)
		}
		return nil
	})
}
