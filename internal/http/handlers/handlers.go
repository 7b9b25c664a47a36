// Handler wiring shared by the login, promotion, and loyalty endpoints.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate domain/service errors into HTTP responses. They
// depend on abstract service interfaces to keep transport concerns separate
// from business logic.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tavolo/go-resto-backend/internal/auth"
	"github.com/tavolo/go-resto-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// LoginService guards and performs login attempts.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type LoginService interface {
	// Login runs the throttle/lockout sequence and delegates authentication.
	Login(ctx context.Context, email, password, ip, userAgent string) (*auth.Session, error)
}

// PromoService evaluates promotion codes for the authenticated user.
type PromoService interface {
	// Validate returns the resolved discount, or a gate-rejection sentinel.
	Validate(ctx context.Context, userID, code string, cartTotalCents int64) (*services.PromoResult, error)
}

// LoyaltyService redeems loyalty points on a customer's behalf.
type LoyaltyService interface {
	// Redeem performs the atomic deduction and issues the credit/discount.
	Redeem(ctx context.Context, adminID, role, publicID string, points int64, mode string) (*services.RedemptionResult, error)
}

// Handlers groups the HTTP endpoints for login guarding, promotion
// validation, and loyalty redemption.
type Handlers struct {
	loginSvc   LoginService
	promoSvc   PromoService
	loyaltySvc LoyaltyService

	// db and idemTTL back the redemption replay lookup; handlers otherwise
	// never touch the store directly.
	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(loginSvc LoginService, promoSvc PromoService, loyaltySvc LoyaltyService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	return &Handlers{loginSvc: loginSvc, promoSvc: promoSvc, loyaltySvc: loyaltySvc, db: db, idemTTL: idemTTL}
}

// nowUTC returns the current time in UTC; replay lookups use it to skip
// expired idempotency records.
func nowUTC() time.Time { return time.Now().UTC() }

// identity extracts the authenticated user id and role from the Gin context
// (set by the bearer middleware). Missing values come back empty; handlers
// behind the auth middleware can rely on a non-empty user id.
func identity(c *gin.Context) (userID, role string) {
	if v, ok := c.Get("userID"); ok {
		userID, _ = v.(string)
	}
	if v, ok := c.Get("userRole"); ok {
		role, _ = v.(string)
	}
	return userID, role
}
