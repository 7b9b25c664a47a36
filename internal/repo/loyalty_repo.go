// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for loyalty
// accounts, their audit trail, and issued credits.
//
// The balance-changing functions (DeductPoints, RefundPoints) are single
// UPDATE statements whose predicate re-checks the balance at write time.
// They must never be replaced by read-then-write sequences in application
// code: the conditional update is what makes concurrent redemptions safe.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tavolo/go-resto-backend/internal/domain"
)

// GetAccountByPublicID fetches a loyalty account by its opaque public UUID,
// or ErrNotFound.
func GetAccountByPublicID(ctx context.Context, db *gorm.DB, publicID string) (*domain.LoyaltyAccount, error) {
	var a domain.LoyaltyAccount
	err := db.WithContext(ctx).Where("public_id = ?", publicID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeductPoints atomically subtracts points from the account balance. The
// UPDATE carries the guard "points >= ?" so the balance check happens at
// write time, not read time; zero affected rows means the guard failed
// (insufficient or concurrently spent balance) and nothing changed.
//
// The balance readback shares the update's transaction: if it fails, the
// deduction rolls back and the caller sees a plain error with nothing spent.
func DeductPoints(ctx context.Context, db *gorm.DB, accountID string, points int64) (int64, bool, error) {
	var (
		balance int64
		ok      bool
	)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.LoyaltyAccount{}).
			Where("id = ? AND points >= ?", accountID, points).
			Updates(map[string]interface{}{
				"points":     gorm.Expr("points - ?", points),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var a domain.LoyaltyAccount
		if err := tx.Select("points").Where("id = ?", accountID).First(&a).Error; err != nil {
			return err
		}
		balance = a.Points
		ok = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return balance, ok, nil
}

// RefundPoints adds points back to the account balance. Used only as the
// compensating write when a dependent insert fails after a deduction.
func RefundPoints(ctx context.Context, db *gorm.DB, accountID string, points int64) error {
	res := db.WithContext(ctx).
		Model(&domain.LoyaltyAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"points":     gorm.Expr("points + ?", points),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateLoyaltyTransaction appends one audit row. The write is best-effort
// from the caller's perspective; failures are logged upstream and never roll
// back the balance change they describe.
func CreateLoyaltyTransaction(ctx context.Context, db *gorm.DB, tx *domain.LoyaltyTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(tx).Error
}

// CreateUserCredit inserts a store-credit row for an online-mode redemption.
func CreateUserCredit(ctx context.Context, db *gorm.DB, userID string, amountCents int64, source string, expiresAt time.Time) (*domain.UserCredit, error) {
	c := &domain.UserCredit{
		ID:          uuid.NewString(),
		UserID:      userID,
		AmountCents: amountCents,
		Source:      source,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}
