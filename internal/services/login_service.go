// Package services – LoginService
//
// This file implements the login guard: per-request throttle, block, and
// lockout decisions wrapped around a delegated authenticator. The service
// owns no credential logic; it decides whether an attempt may proceed,
// records every authenticated attempt, and escalates consecutive failures
// into account lockouts and IP blocks.
//
// Ordering matters and is part of the contract: the pre-authentication
// checks (IP throttle, IP block, account lock) reject without writing an
// attempt row; every decided attempt records exactly one row, success or
// not. Authenticator errors that are not credential failures abort before
// the row is written.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavolo/go-resto-backend/internal/auth"
	"github.com/tavolo/go-resto-backend/internal/notify"
	"github.com/tavolo/go-resto-backend/internal/repo"
)

// Authenticator is the delegated credential checker. The login guard folds
// auth.ErrBadCredentials into its generic invalid-credentials signal; every
// other error is treated as a store failure and propagated untouched, with
// no attempt recorded and no escalation.
type Authenticator interface {
	// Authenticate verifies the credentials and returns an established session.
	Authenticate(ctx context.Context, email, password string) (*auth.Session, error)
}

// LoginPolicy holds the tunable windows and thresholds of the guard.
// The lockout escalation table itself is fixed (see lockDuration).
type LoginPolicy struct {
	// ThrottleWindow / ThrottleMax: pre-auth global IP throttle
	// (any outcome counts).
	ThrottleWindow time.Duration
	ThrottleMax    int64

	// FailWindow / FailMax: failed attempts per IP that trigger a block.
	FailWindow time.Duration
	FailMax    int64

	// BlockDuration is how long a triggered IP block lasts.
	BlockDuration time.Duration
}

// DefaultLoginPolicy returns the production thresholds: 20 attempts per IP
// per minute, and a 1 hour block after 10 failures in 15 minutes.
func DefaultLoginPolicy() LoginPolicy {
	return LoginPolicy{
		ThrottleWindow: time.Minute,
		ThrottleMax:    20,
		FailWindow:     15 * time.Minute,
		FailMax:        10,
		BlockDuration:  time.Hour,
	}
}

// LoginService guards the login endpoint. State lives entirely in the store;
// the service itself is stateless and safe for concurrent use.
type LoginService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Auth is the delegated credential checker.
	Auth Authenticator
	// Policy holds windows and thresholds; zero value fields fall back to
	// DefaultLoginPolicy at construction, not here.
	Policy LoginPolicy
	// Notifier dispatches fire-and-forget fraud alerts. May be nil.
	Notifier *notify.Dispatcher
	// AlertURL is the optional webhook for fraud alerts; empty disables them.
	AlertURL string
}

// NewLoginService constructs a LoginService with the default policy.
func NewLoginService(db *gorm.DB, a Authenticator, n *notify.Dispatcher) *LoginService {
	return &LoginService{DB: db, Auth: a, Policy: DefaultLoginPolicy(), Notifier: n}
}

// lockDuration maps a consecutive-failure count to its lockout duration.
// Below five failures no lock applies.
func lockDuration(failures int) time.Duration {
	switch {
	case failures >= 8:
		return 2 * time.Hour
	case failures == 7:
		return 30 * time.Minute
	case failures == 6:
		return 15 * time.Minute
	case failures == 5:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Login runs the full guard sequence for one attempt and returns the
// established session on success.
//
// Rejections are sentinel errors: ErrThrottled and ErrIPBlocked (429-class),
// ErrAccountLocked (423), ErrInvalidCredentials (401). The pre-auth
// rejections and store failures write nothing; every authenticated outcome
// has recorded a LoginAttempt row before returning so future throttle and
// escalation counting stays correct.
func (s *LoginService) Login(ctx context.Context, email, password, ip, userAgent string) (*auth.Session, error) {
	tr := otel.Tracer("services/LoginService")
	ctx, span := tr.Start(ctx, "Login",
		trace.WithAttributes(attribute.String("client.ip", ip)),
	)
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now().UTC()

	// 1) Global IP throttle: counted over all attempts, successful or not.
	n, err := repo.CountAttemptsByIPSince(ctx, s.DB, ip, now.Add(-s.Policy.ThrottleWindow))
	if err != nil {
		return nil, err
	}
	if n >= s.Policy.ThrottleMax {
		return nil, ErrThrottled
	}

	// 2) Active IP block.
	if b, err := repo.GetIPBlock(ctx, s.DB, ip); err == nil && b.BlockedUntil.After(now) {
		return nil, ErrIPBlocked
	} else if err != nil && err != repo.ErrNotFound {
		return nil, err
	}

	// 3) Active account lockout.
	if l, err := repo.GetLockout(ctx, s.DB, email); err == nil && l.LockedUntil != nil && l.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	} else if err != nil && err != repo.ErrNotFound {
		return nil, err
	}

	// 4) Delegate to the authenticator. Only a credential failure feeds the
	// guard; any other error is an infrastructure problem and must not record
	// an attempt or escalate a lockout.
	sess, authErr := s.Auth.Authenticate(ctx, email, password)
	if authErr != nil && !errors.Is(authErr, auth.ErrBadCredentials) {
		return nil, authErr
	}
	success := authErr == nil

	// 5) Record the attempt. The row feeds future throttle/escalation counts,
	// so a write failure is logged but does not override the auth outcome.
	if err := repo.CreateLoginAttempt(ctx, s.DB, email, ip, userAgent, success); err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("failed to record login attempt")
	}

	if success {
		// 7) Full reset: a successful login clears the lockout state entirely.
		if err := repo.DeleteLockout(ctx, s.DB, email); err != nil {
			log.Error().Err(err).Msg("failed to clear lockout on successful login")
		}
		return sess, nil
	}

	// 6) Failure escalation.
	if err := s.escalate(ctx, email, ip, now); err != nil {
		return nil, err
	}
	return nil, ErrInvalidCredentials
}

// escalate bumps the account lockout counter, applies the tiered lock
// duration, and blocks the IP when its failure count crosses the threshold.
// A non-nil return other than ErrIPBlocked means a store failure.
func (s *LoginService) escalate(ctx context.Context, email, ip string, now time.Time) error {
	lock, err := repo.IncrementLockout(ctx, s.DB, email)
	if err != nil {
		return err
	}
	if d := lockDuration(lock.FailedAttempts); d > 0 {
		until := now.Add(d)
		if err := repo.SetLockoutUntil(ctx, s.DB, email, &until); err != nil {
			return err
		}
	}

	failures, err := repo.CountFailuresByIPSince(ctx, s.DB, ip, now.Add(-s.Policy.FailWindow))
	if err != nil {
		return err
	}
	if failures < s.Policy.FailMax {
		return nil
	}

	until := now.Add(s.Policy.BlockDuration)
	reason := fmt.Sprintf("%d failed logins within %s", failures, s.Policy.FailWindow)
	if err := repo.UpsertIPBlock(ctx, s.DB, ip, reason, until); err != nil {
		return err
	}

	// Fraud log and alert are side channels: best-effort, never blocking.
	if err := repo.CreateFraudEvent(ctx, s.DB, ip, email, "ip_blocked", reason); err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("failed to write fraud event")
	}
	s.Notifier.Go("fraud.ip_blocked", notify.PostJSON(s.AlertURL, map[string]any{
		"kind":          "ip_blocked",
		"ip":            ip,
		"email":         email,
		"reason":        reason,
		"blocked_until": until,
	}))

	return ErrIPBlocked
}
