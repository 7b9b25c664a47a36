// Package services – LoyaltyService
//
// This file implements the loyalty redemption engine: it converts a
// customer's point balance into a dine-in discount or an online store
// credit. The deduction is a single conditional UPDATE (balance re-checked
// at write time), the audit row is best-effort, and a failed online credit
// insert triggers a compensating refund so the customer's balance ends
// exactly where it started.
//
// Request lifecycle: Validating → BalanceDeducted → (TransactionLogged,
// best-effort) → [online: CreditIssued | CreditFailed→Compensated] →
// Completed | Rejected. No partial completion is reachable through the
// failed-credit path.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavolo/go-resto-backend/internal/domain"
	"github.com/tavolo/go-resto-backend/internal/notify"
	"github.com/tavolo/go-resto-backend/internal/repo"
	"github.com/tavolo/go-resto-backend/internal/utils"
)

// Redemption modes.
const (
	ModeDineIn = "dine_in"
	ModeOnline = "online"
)

// CreditSource marks credits issued by this engine.
const CreditSource = "loyalty_redemption"

// LoyaltyPolicy holds the deployment-tunable redemption parameters.
type LoyaltyPolicy struct {
	// MinRedeemPoints / MaxRedeemPoints bound one transaction.
	MinRedeemPoints int64
	MaxRedeemPoints int64
	// CentsPerPoint sets the conversion ratio (1 means 100 points = $1.00).
	CentsPerPoint int64
	// CreditExpiry is how long an issued online credit stays spendable.
	CreditExpiry time.Duration
}

// DefaultLoyaltyPolicy returns the production defaults: 100..50000 points
// per transaction, 1 point = 1 cent, credits valid for 90 days.
func DefaultLoyaltyPolicy() LoyaltyPolicy {
	return LoyaltyPolicy{
		MinRedeemPoints: 100,
		MaxRedeemPoints: 50000,
		CentsPerPoint:   1,
		CreditExpiry:    90 * 24 * time.Hour,
	}
}

// RedemptionResult is the successful outcome of one redemption.
type RedemptionResult struct {
	CreditCents int64  `json:"credit_cents"`
	NewBalance  int64  `json:"new_balance"`
	CreditID    string `json:"credit_id,omitempty"`
}

// LoyaltyService performs atomic point redemption with audit trail and
// compensating rollback. Stateless; safe for concurrent use — concurrent
// redemptions against one account are serialized by the store's conditional
// update, not by anything in this process.
type LoyaltyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Policy holds redemption bounds and the conversion ratio.
	Policy LoyaltyPolicy
	// Notifier dispatches fire-and-forget redemption notifications. May be nil.
	Notifier *notify.Dispatcher
	// NotifyURL is the optional webhook for redemption events.
	NotifyURL string
}

// NewLoyaltyService constructs a LoyaltyService with the default policy.
func NewLoyaltyService(db *gorm.DB, n *notify.Dispatcher) *LoyaltyService {
	return &LoyaltyService{DB: db, Policy: DefaultLoyaltyPolicy(), Notifier: n}
}

// privileged reports whether role may redeem on a customer's behalf.
func privileged(role string) bool {
	return role == domain.RoleStaff || role == domain.RoleAdmin
}

// Redeem converts points from the account identified by publicID into a
// credit (online) or an immediate point-of-sale discount (dine_in), on
// behalf of the privileged caller adminID.
//
// Every validation gate rejects before any mutation. After the conditional
// deduction succeeds, the only error still surfaced is ErrCreditIssueFailed,
// and only after the deducted points were refunded; the audit-row write is
// best-effort and never fails the request.
func (s *LoyaltyService) Redeem(ctx context.Context, adminID, role, publicID string, points int64, mode string) (*RedemptionResult, error) {
	tr := otel.Tracer("services/LoyaltyService")
	ctx, span := tr.Start(ctx, "Redeem",
		trace.WithAttributes(
			attribute.String("loyalty.public_id", publicID),
			attribute.Int64("loyalty.points", points),
			attribute.String("loyalty.mode", mode),
		),
	)
	defer span.End()

	// Validating: reject before touching any row.
	if !privileged(role) {
		return nil, ErrForbiddenRedeem
	}
	if _, err := uuid.Parse(publicID); err != nil {
		return nil, ErrInvalidPublicID
	}
	if points < s.Policy.MinRedeemPoints || points > s.Policy.MaxRedeemPoints {
		return nil, ErrInvalidPoints
	}
	if mode != ModeDineIn && mode != ModeOnline {
		return nil, ErrInvalidMode
	}

	acct, err := repo.GetAccountByPublicID(ctx, s.DB, publicID)
	if err == repo.ErrNotFound {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	// BalanceDeducted: the balance predicate runs inside the UPDATE itself,
	// so an interleaved redemption can never double-spend.
	newBalance, ok, err := repo.DeductPoints(ctx, s.DB, acct.ID, points)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	creditCents := points * s.Policy.CentsPerPoint

	// TransactionLogged (best-effort): the deduction is the authoritative
	// state; a lost audit row is logged, never rolled back.
	s.logTransaction(ctx, acct.ID, adminID, -points, mode, newBalance,
		fmt.Sprintf("Redeemed %d points (%s)", points, utils.FormatCents(creditCents)))

	res := &RedemptionResult{CreditCents: creditCents, NewBalance: newBalance}

	if mode == ModeOnline {
		credit, err := repo.CreateUserCredit(ctx, s.DB, acct.UserID, creditCents, CreditSource, time.Now().UTC().Add(s.Policy.CreditExpiry))
		if err != nil {
			// CreditFailed → Compensated: restore the exact deduction before
			// surfacing the error.
			if rerr := repo.RefundPoints(ctx, s.DB, acct.ID, points); rerr != nil {
				log.Error().Err(rerr).Str("account_id", acct.ID).Int64("points", points).
					Msg("compensating refund failed; balance requires manual correction")
			} else {
				s.logTransaction(ctx, acct.ID, adminID, points, mode, newBalance+points,
					fmt.Sprintf("Reversed %d points after failed credit issuance", points))
			}
			log.Error().Err(err).Str("account_id", acct.ID).Msg("credit insert failed after deduction")
			return nil, ErrCreditIssueFailed
		}
		res.CreditID = credit.ID
	}

	s.Notifier.Go("loyalty.redeemed", notify.PostJSON(s.NotifyURL, map[string]any{
		"account_id":   acct.ID,
		"points":       points,
		"mode":         mode,
		"credit_cents": creditCents,
		"new_balance":  newBalance,
	}))

	return res, nil
}

// logTransaction appends an audit row, swallowing (but logging) failures.
func (s *LoyaltyService) logTransaction(ctx context.Context, accountID, adminID string, pointsChange int64, mode string, balanceAfter int64, note string) {
	txType := "redeem"
	if pointsChange > 0 {
		txType = "redeem_reversal"
	}
	err := repo.CreateLoyaltyTransaction(ctx, s.DB, &domain.LoyaltyTransaction{
		AccountID:    accountID,
		AdminID:      adminID,
		PointsChange: pointsChange,
		Type:         txType,
		Mode:         mode,
		BalanceAfter: balanceAfter,
		Note:         note,
	})
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("failed to write loyalty audit row")
	}
}
