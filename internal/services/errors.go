// Package services defines the business logic for login guarding, promotion
// validation, and loyalty redemption. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer. Policy rejections are return values by design,
// never panics: they are expected outcomes of normal requests.
package services

import "errors"

// Login-guard errors.
var (
	// ErrThrottled is returned when the requesting IP exceeded the global
	// attempt rate before authentication was even tried.
	ErrThrottled = errors.New("too many login attempts, slow down")

	// ErrIPBlocked is returned when the requesting IP carries an active block,
	// either pre-existing or created by this very request crossing the
	// failure-escalation threshold.
	ErrIPBlocked = errors.New("requests from this address are temporarily blocked")

	// ErrAccountLocked is returned when the account carries an active lockout
	// window from prior consecutive failures.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrInvalidCredentials is the generic failure signal. It deliberately
	// does not reveal which factor failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Promotion gate rejections. Error messages double as the machine-checkable
// reason strings returned to clients, so their exact wording is part of the
// API contract.
var (
	// ErrPromoInvalidCode: unknown or inactive code.
	ErrPromoInvalidCode = errors.New("Invalid code")

	// ErrPromoNotActiveYet: starts_at is still in the future.
	ErrPromoNotActiveYet = errors.New("Not active yet")

	// ErrPromoExpired: ends_at has passed.
	ErrPromoExpired = errors.New("Expired")

	// ErrPromoUsageLimit: global redemption count reached max_uses.
	ErrPromoUsageLimit = errors.New("Usage limit reached")

	// ErrPromoUserLimit: this user's redemption count reached per_user_limit.
	ErrPromoUserLimit = errors.New("User limit reached")

	// ErrPromoMinOrder: cart total below min_order_cents.
	ErrPromoMinOrder = errors.New("Minimum order not met")

	// ErrPromoMarginExceeded: percent discount above the margin-protection cap.
	ErrPromoMarginExceeded = errors.New("Discount exceeds margin protection")

	// ErrPromoInvalidAmount: fixed discount larger than the cart total.
	ErrPromoInvalidAmount = errors.New("Invalid discount amount")
)

// promoRejections enumerates every gate rejection so handlers can separate
// expected outcomes from store failures.
var promoRejections = []error{
	ErrPromoInvalidCode,
	ErrPromoNotActiveYet,
	ErrPromoExpired,
	ErrPromoUsageLimit,
	ErrPromoUserLimit,
	ErrPromoMinOrder,
	ErrPromoMarginExceeded,
	ErrPromoInvalidAmount,
}

// PromoRejectionReason returns the user-facing reason string for a gate
// rejection, and false for any other error.
func PromoRejectionReason(err error) (string, bool) {
	for _, r := range promoRejections {
		if errors.Is(err, r) {
			return r.Error(), true
		}
	}
	return "", false
}

// Loyalty redemption errors.
var (
	// ErrInvalidPublicID is returned when the loyalty lookup key is not
	// UUID-shaped.
	ErrInvalidPublicID = errors.New("loyalty id must be a valid UUID")

	// ErrInvalidPoints is returned when points_to_redeem falls outside the
	// configured [minimum, ceiling] range.
	ErrInvalidPoints = errors.New("points outside the redeemable range")

	// ErrInvalidMode is returned for any redemption mode other than
	// dine_in or online.
	ErrInvalidMode = errors.New("mode must be dine_in or online")

	// ErrForbiddenRedeem is returned when the caller does not hold a
	// privileged role.
	ErrForbiddenRedeem = errors.New("caller may not redeem loyalty points")

	// ErrAccountNotFound indicates the public id resolved to no account.
	ErrAccountNotFound = errors.New("loyalty account not found")

	// ErrInsufficientBalance is returned when the conditional deduction
	// affected zero rows: the balance was (or concurrently became) smaller
	// than the requested deduction, and nothing was changed.
	ErrInsufficientBalance = errors.New("insufficient point balance")

	// ErrCreditIssueFailed is returned when the online-mode credit insert
	// failed after the deduction. By the time callers see it, the deducted
	// points have already been refunded.
	ErrCreditIssueFailed = errors.New("credit issuance failed")
)
