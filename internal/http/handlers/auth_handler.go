// Login HTTP handler.
//
// This file exposes the guarded login endpoint:
//   - POST /auth/login
//
// The handler itself carries no auth; it performs it, wrapped in the
// throttle/lockout rules of the login service. Rejections map to distinct
// statuses so clients can tell throttling (429) from lockout (423) from bad
// credentials (401) — but the 401 message never reveals which factor failed.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tavolo/go-resto-backend/internal/services"
)

// LoginRequest is the JSON payload for a login attempt.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"guest@example.com"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @ID          login
// @Summary     Authenticate a user
// @Description Runs the login guard (IP throttle, IP block, account lockout) and, when allowed, authenticates the credentials.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body body handlers.LoginRequest true "Credentials"
//
// @Success     200  {object} map[string]interface{} "Established session"
// @Failure     400  {object} handlers.ErrorResponse "Malformed payload"
// @Failure     401  {object} handlers.ErrorResponse "Invalid credentials"
// @Failure     423  {object} handlers.ErrorResponse "Account locked"
// @Failure     429  {object} handlers.ErrorResponse "Throttled or IP blocked"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}

	sess, err := h.loginSvc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch err {
		case services.ErrThrottled:
			c.Header("Retry-After", "60")
			fail(c, http.StatusTooManyRequests, ErrCodeThrottled, err.Error())
		case services.ErrIPBlocked:
			fail(c, http.StatusTooManyRequests, ErrCodeIPBlocked, err.Error())
		case services.ErrAccountLocked:
			fail(c, http.StatusLocked, ErrCodeAccountLocked, err.Error())
		case services.ErrInvalidCredentials:
			fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		}
		return
	}

	ok(c, http.StatusOK, gin.H{"session": sess})
}
