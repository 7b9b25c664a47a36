// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the login-guard
// tables: login attempts, account lockouts, IP blocks, and fraud events.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition. Throttle and escalation counts are derived from the
// append-only login_attempts table so the counter can never drift from its
// audit trail.
//
// Error semantics:
//   - Missing rows are reported as gorm.ErrRecordNotFound (aliased here as
//     ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tavolo/go-resto-backend/internal/domain"
)

// CreateLoginAttempt appends one attempt row. The row is written on every
// authenticated attempt, successful or not; pre-auth rejections (throttle,
// IP block, account lock) never reach this function.
func CreateLoginAttempt(ctx context.Context, db *gorm.DB, email, ip, userAgent string, success bool) error {
	a := &domain.LoginAttempt{
		ID:        uuid.NewString(),
		Email:     email,
		IP:        ip,
		UserAgent: userAgent,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(a).Error
}

// CountAttemptsByIPSince returns the number of attempts (any outcome) from ip
// recorded at or after since. Used for the pre-auth global IP throttle.
func CountAttemptsByIPSince(ctx context.Context, db *gorm.DB, ip string, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LoginAttempt{}).
		Where("ip = ? AND created_at >= ?", ip, since).
		Count(&n).Error
	return n, err
}

// CountFailuresByIPSince returns the number of failed attempts from ip
// recorded at or after since. Used for the IP block escalation.
func CountFailuresByIPSince(ctx context.Context, db *gorm.DB, ip string, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LoginAttempt{}).
		Where("ip = ? AND success = ? AND created_at >= ?", ip, false, since).
		Count(&n).Error
	return n, err
}

// GetLockout fetches the lockout row for email, or ErrNotFound.
func GetLockout(ctx context.Context, db *gorm.DB, email string) (*domain.AccountLockout, error) {
	var l domain.AccountLockout
	err := db.WithContext(ctx).Where("email = ?", email).First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// IncrementLockout bumps failed_attempts for email by one and returns the
// updated row. The increment runs as a single conflict-upsert statement
// (failed_attempts = failed_attempts + 1) so concurrent failures cannot lose
// updates; the readback only reports the new count.
func IncrementLockout(ctx context.Context, db *gorm.DB, email string) (*domain.AccountLockout, error) {
	now := time.Now().UTC()
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"failed_attempts": gorm.Expr("failed_attempts + 1"),
				"updated_at":      now,
			}),
		}).
		Create(&domain.AccountLockout{
			Email:          email,
			FailedAttempts: 1,
			UpdatedAt:      now,
		}).Error
	if err != nil {
		return nil, err
	}
	return GetLockout(ctx, db, email)
}

// SetLockoutUntil stamps the lock expiry for email. A nil until clears the
// lock without resetting the failure counter.
func SetLockoutUntil(ctx context.Context, db *gorm.DB, email string, until *time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.AccountLockout{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{
			"locked_until": until,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// DeleteLockout removes the lockout row for email. Missing rows are not an
// error: a successful login always resets to "no lockout state".
func DeleteLockout(ctx context.Context, db *gorm.DB, email string) error {
	return db.WithContext(ctx).
		Where("email = ?", email).
		Delete(&domain.AccountLockout{}).Error
}

// GetIPBlock fetches the block row for ip regardless of expiry, or
// ErrNotFound. Callers decide whether blocked_until is still in the future.
func GetIPBlock(ctx context.Context, db *gorm.DB, ip string) (*domain.IPBlock, error) {
	var b domain.IPBlock
	err := db.WithContext(ctx).Where("ip = ?", ip).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertIPBlock creates or refreshes the block row for ip with the given
// reason and expiry.
func UpsertIPBlock(ctx context.Context, db *gorm.DB, ip, reason string, until time.Time) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"reason":        reason,
				"blocked_until": until,
			}),
		}).
		Create(&domain.IPBlock{
			IP:           ip,
			Reason:       reason,
			BlockedUntil: until,
			CreatedAt:    time.Now().UTC(),
		}).Error
}

// CreateFraudEvent appends a fraud-log row. Best-effort at call sites: a
// failure here must never fail the login request itself.
func CreateFraudEvent(ctx context.Context, db *gorm.DB, ip, email, kind, details string) error {
	e := &domain.FraudEvent{
		ID:        uuid.NewString(),
		IP:        ip,
		Email:     email,
		Kind:      kind,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(e).Error
}

// GetUserByEmail fetches a credential row by (lower-cased) email, or
// ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
