// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Strict CORS: disallowed origins are refused before any business logic
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tavolo/go-resto-backend/internal/auth"
	"github.com/tavolo/go-resto-backend/internal/config"
	"github.com/tavolo/go-resto-backend/internal/domain"
	"github.com/tavolo/go-resto-backend/internal/http/handlers"
	"github.com/tavolo/go-resto-backend/internal/http/middleware"
	"github.com/tavolo/go-resto-backend/internal/notify"
	"github.com/tavolo/go-resto-backend/internal/repo"
	"github.com/tavolo/go-resto-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Rate limiter (per user/IP)
//  9. CORS and Security headers
//
// Idempotency validation is route-scoped: it runs on the redemption endpoint
// after bearer auth, so the replay lookup sees the caller's identity.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, notifier *notify.Dispatcher, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Authorization", // bearer tokens never reach the logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture. With no allowlist configured everything is allowed
	// (dev/test); with an allowlist, a disallowed Origin header is refused
	// outright before any handler runs.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			origin := c.GetHeader("Origin")
			if origin == "" {
				c.Next()
				return
			}
			if _, ok := allowed[origin]; !ok {
				handlers.Fail(c, http.StatusForbidden, handlers.ErrCodeForbidden, "origin not allowed")
				return
			}
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← config/db/notifier
	authSvc := auth.NewService(db, []byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
	authSvc.TokenTTL = cfg.Auth.TokenTTL

	loginSvc := services.NewLoginService(db, authSvc, notifier)
	loginSvc.Policy = services.LoginPolicy{
		ThrottleWindow: cfg.LoginGuard.ThrottleWindow,
		ThrottleMax:    cfg.LoginGuard.ThrottleMax,
		FailWindow:     cfg.LoginGuard.FailWindow,
		FailMax:        cfg.LoginGuard.FailMax,
		BlockDuration:  cfg.LoginGuard.BlockDuration,
	}
	loginSvc.AlertURL = cfg.FraudWebhookURL

	promoSvc := services.NewPromoService(db)
	promoSvc.MaxPercent = cfg.Promo.MaxPercent

	loyaltySvc := services.NewLoyaltyService(db, notifier)
	loyaltySvc.Policy = services.LoyaltyPolicy{
		MinRedeemPoints: cfg.Loyalty.MinRedeem,
		MaxRedeemPoints: cfg.Loyalty.MaxRedeem,
		CentsPerPoint:   cfg.Loyalty.CentsPerPoint,
		CreditExpiry:    cfg.Loyalty.CreditExpiry,
	}
	loyaltySvc.NotifyURL = cfg.Loyalty.NotifyWebhookURL

	h := handlers.New(loginSvc, promoSvc, loyaltySvc, db, cfg.IdempotencyTTL)

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
			return repo.HasIdempotency(ctx, db, userID, key, now)
		},
	)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Auth
		api.POST("/auth/login", h.Login)

		// Promotions
		api.POST("/promotions/validate", middleware.BearerAuth(authSvc), h.ValidatePromo)

		// Loyalty
		api.POST("/loyalty/redeem",
			middleware.BearerAuth(authSvc),
			middleware.RequireRole(domain.RoleStaff, domain.RoleAdmin),
			idem,
			h.Redeem,
		)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
