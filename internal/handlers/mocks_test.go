package handlers

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"topup-store/internal/repo"
)

// fakeStore is an in-memory repo.Store. FinalizeOrder mimics the atomic
// contract: when finalizeErr is set nothing is applied at all.
type fakeStore struct {
	users          map[string]*repo.User
	products       map[string]*repo.Product
	orders         map[string]*repo.Order
	legacyBalances map[string]int64
	notifications  []repo.Notification

	finalizeErr   error
	finalizeCalls int
}

func (f *fakeStore) Close() {}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) RunMigrations(ctx context.Context, filesystem fs.FS) error { return nil }

func (f *fakeStore) GetUserByGamingID(ctx context.Context, gamingID string) (*repo.User, error) {
	user, ok := f.users[gamingID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", gamingID, repo.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) GetProductByID(ctx context.Context, id string) (*repo.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, repo.ErrNotFound)
	}
	copied := *product
	return &copied, nil
}

func (f *fakeStore) OrderExists(ctx context.Context, transactionID string) (bool, error) {
	_, ok := f.orders[transactionID]
	return ok, nil
}

func (f *fakeStore) GetOrderByTransactionID(ctx context.Context, transactionID string) (*repo.Order, error) {
	order, ok := f.orders[transactionID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", transactionID, repo.ErrNotFound)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) FinalizeOrder(ctx context.Context, order repo.Order, fx repo.OrderEffects) (*repo.Order, error) {
	f.finalizeCalls++
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	if _, exists := f.orders[order.TransactionID]; exists {
		return nil, fmt.Errorf("finalize order %s: %w", order.TransactionID, repo.ErrDuplicateOrder)
	}

	order.ID = fmt.Sprintf("o%d", len(f.orders)+1)
	order.CreatedAt = time.Now()
	f.orders[order.TransactionID] = &order

	if fx.CoinsDelta != 0 {
		for _, user := range f.users {
			if user.ID == order.UserID {
				user.Coins += fx.CoinsDelta
			}
		}
	}
	if fx.ReferralCode != "" && fx.ReferralRewardPaise > 0 {
		f.legacyBalances[fx.ReferralCode] += fx.ReferralRewardPaise
	}
	f.notifications = append(f.notifications, fx.Notification)

	copied := order
	return &copied, nil
}

func (f *fakeStore) GetLegacyUserByReferralCode(ctx context.Context, code string) (*repo.LegacyUser, error) {
	balance, ok := f.legacyBalances[code]
	if !ok {
		return nil, fmt.Errorf("legacy user %s: %w", code, repo.ErrNotFound)
	}
	return &repo.LegacyUser{ReferralCode: code, WalletBalancePaise: balance}, nil
}

func (f *fakeStore) VisualPromotionExists(ctx context.Context, gamingID string) (bool, error) {
	return false, nil
}

func (f *fakeStore) VisualIDInUse(ctx context.Context, visualID string) (bool, error) {
	return false, nil
}

func (f *fakeStore) PromoteVisualID(ctx context.Context, userID, oldGamingID, newGamingID string) error {
	return nil
}
