// Promotion HTTP handler.
//
// This file exposes the promotion validation endpoint:
//   - POST /promotions/validate
//
// Gate rejections are expected, user-facing outcomes: they come back as
// 200 {valid:false, reason} rather than error statuses, so checkout UIs can
// show the reason inline. Only transport problems (missing code, missing
// token) and store failures use error statuses.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tavolo/go-resto-backend/internal/services"
)

// ValidatePromoRequest is the JSON payload for promotion validation.
type ValidatePromoRequest struct {
	// Code is matched case-insensitively after trimming.
	Code string `json:"code" example:"LUNCH15"`
	// CartTotalCents is the order total in minor currency units.
	CartTotalCents int64 `json:"cart_total_cents" example:"2450"`
}

// ValidatePromoResponse is the evaluation outcome.
type ValidatePromoResponse struct {
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason,omitempty"`
	PromotionID string `json:"promotion_id,omitempty"`
	Type        string `json:"type,omitempty"`
	Value       int64  `json:"value,omitempty"`
}

// ValidatePromo godoc
// @ID          validatePromo
// @Summary     Validate a promotion code
// @Description Evaluates a code against time windows, usage counters, smart-discount overrides, and margin caps. Performs no writes.
// @Tags        Promotions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body body handlers.ValidatePromoRequest true "Code and cart total"
//
// @Success     200  {object} handlers.ValidatePromoResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing code"
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /promotions/validate [post]
func (h *Handlers) ValidatePromo(c *gin.Context) {
	var req ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code is required")
		return
	}

	uid, _ := identity(c)
	res, err := h.promoSvc.Validate(c.Request.Context(), uid, req.Code, req.CartTotalCents)
	if err != nil {
		if reason, rejected := services.PromoRejectionReason(err); rejected {
			ok(c, http.StatusOK, ValidatePromoResponse{Valid: false, Reason: reason})
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}

	ok(c, http.StatusOK, ValidatePromoResponse{
		Valid:       true,
		PromotionID: res.PromotionID,
		Type:        res.Type,
		Value:       res.Value,
	})
}
