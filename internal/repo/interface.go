package repo

import (
	"context"
	"io/fs"
)

// Store defines the interface for data persistence.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Entities
	GetUserByGamingID(ctx context.Context, gamingID string) (*User, error)
	GetProductByID(ctx context.Context, id string) (*Product, error)

	// Orders
	OrderExists(ctx context.Context, transactionID string) (bool, error)
	GetOrderByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	FinalizeOrder(ctx context.Context, order Order, fx OrderEffects) (*Order, error)

	// Referral ledger
	GetLegacyUserByReferralCode(ctx context.Context, code string) (*LegacyUser, error)

	// Visual ID promotion
	VisualPromotionExists(ctx context.Context, gamingID string) (bool, error)
	VisualIDInUse(ctx context.Context, visualID string) (bool, error)
	PromoteVisualID(ctx context.Context, userID, oldGamingID, newGamingID string) error
}
