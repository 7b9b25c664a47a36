// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for promotions,
// their redemptions, and time-windowed smart discounts.
//
// Usage counts are always derived with COUNT(*) over the append-only
// promo_redemptions table; there is deliberately no stored "used" counter on
// the promotion row that could diverge from the redemption log.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tavolo/go-resto-backend/internal/domain"
)

// GetActivePromotionByCode fetches the promotion with the given (already
// normalized) code where active = true. Inactive or unknown codes both
// surface as ErrNotFound so the caller cannot distinguish them.
func GetActivePromotionByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Promotion, error) {
	var p domain.Promotion
	err := db.WithContext(ctx).
		Where("code = ? AND active = ?", code, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountRedemptions returns the total number of recorded uses of a promotion.
func CountRedemptions(ctx context.Context, db *gorm.DB, promotionID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PromoRedemption{}).
		Where("promotion_id = ?", promotionID).
		Count(&n).Error
	return n, err
}

// CountUserRedemptions returns the number of recorded uses of a promotion by
// a single user.
func CountUserRedemptions(ctx context.Context, db *gorm.DB, promotionID, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.PromoRedemption{}).
		Where("promotion_id = ? AND user_id = ?", promotionID, userID).
		Count(&n).Error
	return n, err
}

// CreateRedemption appends one redemption row. Called by order completion,
// never by validation: validating a code performs no writes.
func CreateRedemption(ctx context.Context, db *gorm.DB, promotionID, userID string) (*domain.PromoRedemption, error) {
	r := &domain.PromoRedemption{
		ID:          uuid.NewString(),
		PromotionID: promotionID,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// FindSmartDiscount returns the active smart discount whose day matches
// dayOfWeek and whose inclusive [start_hour, end_hour] window contains hour,
// or ErrNotFound when no override applies. When several rows match, the most
// recently created wins.
func FindSmartDiscount(ctx context.Context, db *gorm.DB, dayOfWeek, hour int) (*domain.SmartDiscount, error) {
	var d domain.SmartDiscount
	err := db.WithContext(ctx).
		Where("active = ? AND day_of_week = ? AND start_hour <= ? AND end_hour >= ?",
			true, dayOfWeek, hour, hour).
		Order("created_at desc").
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
