package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetProductByID returns the catalog entry with the given ID.
func (r *Repository) GetProductByID(ctx context.Context, id string) (*Product, error) {
	const q = `
SELECT id, name, price_paise, image_url, is_coin_product, quantity,
       coins_applicable, is_available, created_at, updated_at
FROM products
WHERE id = $1
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, q, id)
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.PricePaise, &p.ImageURL, &p.IsCoinProduct, &p.Quantity, &p.CoinsApplicable, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return &p, nil
}
