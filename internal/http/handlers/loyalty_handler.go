// Loyalty redemption HTTP handler.
//
// This file exposes the privileged redemption endpoint:
//   - POST /loyalty/redeem
//
// Clients may send an Idempotency-Key header; a retry carrying the same key
// within the TTL is answered from the stored outcome without deducting
// points again.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tavolo/go-resto-backend/internal/http/middleware"
	"github.com/tavolo/go-resto-backend/internal/repo"
	"github.com/tavolo/go-resto-backend/internal/services"
)

// RedeemRequest is the JSON payload for a loyalty redemption.
type RedeemRequest struct {
	// LoyaltyPublicID is the opaque customer lookup key (UUID).
	LoyaltyPublicID string `json:"loyalty_public_id" binding:"required" example:"fa4dfbe0-c3bf-47bd-b32f-d7de221cf43b"`
	// PointsToRedeem must fall inside the configured per-transaction range.
	PointsToRedeem int64 `json:"points_to_redeem" binding:"required" example:"500"`
	// Mode selects the payout: dine_in (immediate discount) or online (store credit).
	Mode string `json:"mode" binding:"required,oneof=dine_in online" example:"online"`
}

// RedeemResponse is the successful redemption outcome.
type RedeemResponse struct {
	CreditCents int64  `json:"credit_cents"`
	NewBalance  int64  `json:"new_balance"`
	CreditID    string `json:"credit_id,omitempty"`
}

// Redeem godoc
// @ID          redeemLoyalty
// @Summary     Redeem loyalty points
// @Description Atomically converts a customer's points into a dine-in discount or an online credit, with audit trail and rollback on partial failure.
// @Tags        Loyalty
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key header string false "Safe-retry key"
// @Param       body body handlers.RedeemRequest true "Redemption parameters"
//
// @Success     200  {object} handlers.RedeemResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid input"
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Failure     403  {object} handlers.ErrorResponse "Caller not privileged"
// @Failure     404  {object} handlers.ErrorResponse "Customer not found"
// @Failure     422  {object} handlers.ErrorResponse "Insufficient balance"
// @Failure     500  {object} handlers.ErrorResponse "Credit issuance failed (compensation applied)"
// @Router      /loyalty/redeem [post]
func (h *Handlers) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "loyalty_public_id, points_to_redeem and mode are required")
		return
	}

	uid, role := identity(c)
	key, hasKey := middleware.GetIdempotencyKey(c)

	// Serve replays from the stored outcome; no second deduction.
	if hasKey && middleware.IsReplay(c) {
		if rec, err := repo.GetIdempotency(c.Request.Context(), h.db, uid, req.LoyaltyPublicID, key, nowUTC()); err == nil {
			ok(c, rec.Status, RedeemResponse{CreditCents: rec.CreditCents, NewBalance: rec.NewBalance, CreditID: rec.CreditID})
			return
		}
		// Fall through and execute normally when the record vanished.
	}

	res, err := h.loyaltySvc.Redeem(c.Request.Context(), uid, role, req.LoyaltyPublicID, req.PointsToRedeem, req.Mode)
	if err != nil {
		switch err {
		case services.ErrForbiddenRedeem:
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		case services.ErrInvalidPublicID, services.ErrInvalidPoints, services.ErrInvalidMode:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case services.ErrAccountNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case services.ErrInsufficientBalance:
			fail(c, http.StatusUnprocessableEntity, ErrCodeInsufficientBalance, err.Error())
		case services.ErrCreditIssueFailed:
			fail(c, http.StatusInternalServerError, ErrCodeCreditIssueFailed, "credit issuance failed; points were not deducted")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		}
		return
	}

	if hasKey {
		if _, err := repo.CreateIdempotency(c.Request.Context(), h.db, uid, req.LoyaltyPublicID, key,
			res.CreditID, res.CreditCents, res.NewBalance, http.StatusOK, h.idemTTL); err != nil && err != repo.ErrDuplicate {
			log.Warn().Err(err).Msg("failed to store idempotency record")
		}
	}

	ok(c, http.StatusOK, RedeemResponse{CreditCents: res.CreditCents, NewBalance: res.NewBalance, CreditID: res.CreditID})
}
