// Package services – PromoService
//
// This file implements promotion-code validation: a read-only gate sequence
// over the promotions, promo_redemptions, and smart_discounts tables. Gates
// run in a fixed order and short-circuit on the first failure, each with its
// own reason string. A matching smart discount replaces the promotion's
// discount parameters for this evaluation only; the stored row is never
// touched. Margin protection runs last, after any override.
//
// Validation performs no writes: redemption bookkeeping happens when an
// order actually completes (see Record).
package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tavolo/go-resto-backend/internal/domain"
	"github.com/tavolo/go-resto-backend/internal/repo"
)

// PromoResult is the resolved discount for a valid code: the promotion's own
// parameters, or the smart-discount override when one is in effect.
type PromoResult struct {
	PromotionID string `json:"promotion_id"`
	Type        string `json:"type"`
	Value       int64  `json:"value"`
}

// PromoService evaluates promotion codes against time windows, usage
// counters, and margin-safety caps.
type PromoService struct {
	// DB is the GORM handle used for lookups and counts.
	DB *gorm.DB

	// MaxPercent caps percent-type discounts (margin protection). Values
	// above it are rejected even when introduced by an override.
	MaxPercent int64

	// Now overrides the evaluation clock; nil means time.Now. Used by the
	// time-window and smart-discount gates.
	Now func() time.Time
}

// NewPromoService constructs a PromoService with the default 70% margin cap.
func NewPromoService(db *gorm.DB) *PromoService {
	return &PromoService{DB: db, MaxPercent: 70}
}

// upperCaser folds promotion codes case-insensitively for lookup.
var upperCaser = cases.Upper(language.Und)

// NormalizeCode trims and upper-cases a user-supplied promotion code so it
// matches the stored form.
func NormalizeCode(code string) string {
	return upperCaser.String(strings.TrimSpace(code))
}

func (s *PromoService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate runs every gate for code against the user's history and the cart
// total. On success it returns the resolved discount; on rejection it
// returns one of the ErrPromo* sentinels, whose messages are the reason
// strings clients branch on. Unexpected store failures propagate as raw
// errors.
func (s *PromoService) Validate(ctx context.Context, userID, code string, cartTotalCents int64) (*PromoResult, error) {
	tr := otel.Tracer("services/PromoService")
	ctx, span := tr.Start(ctx, "Validate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("cart.total_cents", cartTotalCents),
		),
	)
	defer span.End()

	now := s.now()

	// 1) Lookup by normalized code; inactive and unknown are the same outcome.
	p, err := repo.GetActivePromotionByCode(ctx, s.DB, NormalizeCode(code))
	if err == repo.ErrNotFound {
		return nil, ErrPromoInvalidCode
	}
	if err != nil {
		return nil, err
	}

	// 2) Time window.
	if p.StartsAt != nil && p.StartsAt.After(now) {
		return nil, ErrPromoNotActiveYet
	}
	if p.EndsAt != nil && p.EndsAt.Before(now) {
		return nil, ErrPromoExpired
	}

	// 3) Global usage, derived from the redemption log.
	if p.MaxUses != nil {
		n, err := repo.CountRedemptions(ctx, s.DB, p.ID)
		if err != nil {
			return nil, err
		}
		if n >= int64(*p.MaxUses) {
			return nil, ErrPromoUsageLimit
		}
	}

	// 4) Per-user usage.
	if p.PerUserLimit != nil {
		n, err := repo.CountUserRedemptions(ctx, s.DB, p.ID, userID)
		if err != nil {
			return nil, err
		}
		if n >= int64(*p.PerUserLimit) {
			return nil, ErrPromoUserLimit
		}
	}

	// 5) Minimum order.
	if p.MinOrderCents != nil && cartTotalCents < *p.MinOrderCents {
		return nil, ErrPromoMinOrder
	}

	// 6) Smart-discount override for the current day/hour window.
	dType, dValue := p.Type, p.Value
	sd, err := repo.FindSmartDiscount(ctx, s.DB, int(now.Weekday()), now.Hour())
	if err != nil && err != repo.ErrNotFound {
		return nil, err
	}
	if sd != nil {
		dType, dValue = sd.Type, sd.Value
	}

	// 7) Margin protection, applied to the resolved discount.
	if dType == domain.DiscountPercent && dValue > s.MaxPercent {
		return nil, ErrPromoMarginExceeded
	}
	if dType == domain.DiscountFixed && dValue > cartTotalCents {
		return nil, ErrPromoInvalidAmount
	}

	return &PromoResult{PromotionID: p.ID, Type: dType, Value: dValue}, nil
}

// Record books one use of a promotion for a user. Order completion calls
// this after the discount has actually been applied; Validate never does.
func (s *PromoService) Record(ctx context.Context, promotionID, userID string) error {
	_, err := repo.CreateRedemption(ctx, s.DB, promotionID, userID)
	return err
}
