// Package visualid assigns cosmetic display IDs after a buyer's first normal
// purchase. Entirely best effort: the purchase is already settled when this
// runs, so every failure is swallowed by the caller.
package visualid

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"topup-store/internal/repo"
)

// Store is the persistence surface the promoter needs.
type Store interface {
	VisualPromotionExists(ctx context.Context, gamingID string) (bool, error)
	VisualIDInUse(ctx context.Context, visualID string) (bool, error)
	PromoteVisualID(ctx context.Context, userID, oldGamingID, newGamingID string) error
}

// Promoter assigns a visual gaming ID derived from the user's real one.
type Promoter struct {
	store  Store
	logger *slog.Logger
	// intN is swappable for deterministic tests.
	intN func(n int) int
}

// New creates a Promoter.
func New(store Store, logger *slog.Logger) *Promoter {
	return &Promoter{
		store:  store,
		logger: logger.With("component", "visualid"),
		intN:   rand.IntN,
	}
}

// Promote assigns a visual ID to the user if they are eligible: no visual ID
// yet, no prior promotion involving their gaming ID, and their gaming ID is
// not already displayed by someone else.
func (p *Promoter) Promote(ctx context.Context, user repo.User) error {
	if user.VisualGamingID != nil && *user.VisualGamingID != "" {
		return nil
	}
	if user.GamingID == "" {
		return nil
	}

	promoted, err := p.store.VisualPromotionExists(ctx, user.GamingID)
	if err != nil {
		return fmt.Errorf("check promotion log: %w", err)
	}
	if promoted {
		return nil
	}

	inUse, err := p.store.VisualIDInUse(ctx, user.GamingID)
	if err != nil {
		return fmt.Errorf("check visual id use: %w", err)
	}
	if inUse {
		return nil
	}

	visualID := p.mutateID(user.GamingID)
	if err := p.store.PromoteVisualID(ctx, user.ID, user.GamingID, visualID); err != nil {
		return fmt.Errorf("promote visual id: %w", err)
	}

	p.logger.Info("visual id assigned", "gaming_id", user.GamingID, "visual_id", visualID)
	return nil
}

// mutateID replaces one character at a random position with a random digit
// that differs from the original character.
func (p *Promoter) mutateID(id string) string {
	chars := []byte(id)
	idx := p.intN(len(chars))
	original := chars[idx]

	digit := byte('0' + p.intN(10))
	for digit == original {
		digit = byte('0' + p.intN(10))
	}
	chars[idx] = digit
	return string(chars)
}
