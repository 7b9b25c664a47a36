package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tavolo/go-resto-backend/internal/domain"
)

// newLoyaltySvcDB migrates the given models only; omitting user_credits is
// how the compensation path gets exercised.
func newLoyaltySvcDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("loyalty_svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func allLoyaltyModels() []any {
	return []any{
		&domain.LoyaltyAccount{}, &domain.LoyaltyTransaction{}, &domain.UserCredit{},
	}
}

func seedLoyaltyAccount(t *testing.T, db *gorm.DB, points int64) *domain.LoyaltyAccount {
	t.Helper()
	a := &domain.LoyaltyAccount{
		ID:       uuid.NewString(),
		PublicID: uuid.NewString(),
		UserID:   "cust-1",
		Points:   points,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func TestRedeem_ValidationGates(t *testing.T) {
	db := newLoyaltySvcDB(t, allLoyaltyModels()...)
	s := NewLoyaltyService(db, nil)
	ctx := context.Background()
	acct := seedLoyaltyAccount(t, db, 1000)

	cases := []struct {
		name     string
		role     string
		publicID string
		points   int64
		mode     string
		want     error
	}{
		{"customer role", domain.RoleCustomer, acct.PublicID, 500, ModeOnline, ErrForbiddenRedeem},
		{"empty role", "", acct.PublicID, 500, ModeOnline, ErrForbiddenRedeem},
		{"malformed id", domain.RoleStaff, "not-a-uuid", 500, ModeOnline, ErrInvalidPublicID},
		{"below minimum", domain.RoleStaff, acct.PublicID, 99, ModeOnline, ErrInvalidPoints},
		{"above ceiling", domain.RoleStaff, acct.PublicID, 50001, ModeOnline, ErrInvalidPoints},
		{"bad mode", domain.RoleStaff, acct.PublicID, 500, "takeaway", ErrInvalidMode},
		{"unknown account", domain.RoleStaff, uuid.NewString(), 500, ModeOnline, ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Redeem(ctx, "admin-1", tc.role, tc.publicID, tc.points, tc.mode); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// No gate touched the balance.
	var after domain.LoyaltyAccount
	if err := db.First(&after, "id = ?", acct.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Points != 1000 {
		t.Fatalf("gates mutated balance: %d", after.Points)
	}
}

func TestRedeem_DineIn_DeductsAndAudits(t *testing.T) {
	db := newLoyaltySvcDB(t, allLoyaltyModels()...)
	s := NewLoyaltyService(db, nil)
	ctx := context.Background()
	acct := seedLoyaltyAccount(t, db, 1000)

	res, err := s.Redeem(ctx, "admin-1", domain.RoleStaff, acct.PublicID, 500, ModeDineIn)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.CreditCents != 500 || res.NewBalance != 500 || res.CreditID != "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var txs []domain.LoyaltyTransaction
	if err := db.Where("account_id = ?", acct.ID).Find(&txs).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(txs))
	}
	tx := txs[0]
	if tx.PointsChange != -500 || tx.Type != "redeem" || tx.Mode != ModeDineIn ||
		tx.BalanceAfter != 500 || tx.AdminID != "admin-1" {
		t.Fatalf("audit mismatch: %+v", tx)
	}

	// Dine-in issues no store credit.
	var credits int64
	if err := db.Model(&domain.UserCredit{}).Count(&credits).Error; err != nil || credits != 0 {
		t.Fatalf("credits = %d, %v; want 0", credits, err)
	}
}

func TestRedeem_Online_IssuesExpiringCredit(t *testing.T) {
	db := newLoyaltySvcDB(t, allLoyaltyModels()...)
	s := NewLoyaltyService(db, nil)
	ctx := context.Background()
	acct := seedLoyaltyAccount(t, db, 1000)

	res, err := s.Redeem(ctx, "admin-1", domain.RoleAdmin, acct.PublicID, 500, ModeOnline)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.CreditCents != 500 || res.NewBalance != 500 || res.CreditID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var credit domain.UserCredit
	if err := db.First(&credit, "id = ?", res.CreditID).Error; err != nil {
		t.Fatalf("load credit: %v", err)
	}
	if credit.UserID != acct.UserID || credit.AmountCents != 500 || credit.Source != CreditSource {
		t.Fatalf("credit mismatch: %+v", credit)
	}
	// Expiry ≈ 90 days out.
	d := time.Until(credit.ExpiresAt)
	if d < 89*24*time.Hour || d > 91*24*time.Hour {
		t.Fatalf("credit expiry ≈ %v; want ~90 days", d)
	}
}

func TestRedeem_InsufficientBalance_NothingChanges(t *testing.T) {
	db := newLoyaltySvcDB(t, allLoyaltyModels()...)
	s := NewLoyaltyService(db, nil)
	ctx := context.Background()
	acct := seedLoyaltyAccount(t, db, 1000)

	_, err := s.Redeem(ctx, "admin-1", domain.RoleStaff, acct.PublicID, 1100, ModeOnline)
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var after domain.LoyaltyAccount
	if err := db.First(&after, "id = ?", acct.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Points != 1000 {
		t.Fatalf("balance changed on rejection: %d", after.Points)
	}
	var txs, credits int64
	db.Model(&domain.LoyaltyTransaction{}).Count(&txs)
	db.Model(&domain.UserCredit{}).Count(&credits)
	if txs != 0 || credits != 0 {
		t.Fatalf("rejected redemption left rows: txs=%d credits=%d", txs, credits)
	}
}

func TestRedeem_CreditInsertFailure_CompensatesBalance(t *testing.T) {
	// user_credits deliberately not migrated: the online insert must fail
	// after the deduction already happened.
	db := newLoyaltySvcDB(t, &domain.LoyaltyAccount{}, &domain.LoyaltyTransaction{})
	s := NewLoyaltyService(db, nil)
	ctx := context.Background()
	acct := seedLoyaltyAccount(t, db, 1000)

	_, err := s.Redeem(ctx, "admin-1", domain.RoleStaff, acct.PublicID, 500, ModeOnline)
	if err != ErrCreditIssueFailed {
		t.Fatalf("expected ErrCreditIssueFailed, got %v", err)
	}

	// The compensating refund restored the exact starting balance.
	var after domain.LoyaltyAccount
	if err := db.First(&after, "id = ?", acct.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Points != 1000 {
		t.Fatalf("compensation failed: balance = %d, want 1000", after.Points)
	}

	// Both the deduction and its reversal are in the audit trail.
	var txs []domain.LoyaltyTransaction
	if err := db.Where("account_id = ?", acct.ID).Order("created_at").Find(&txs).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(txs))
	}
	if txs[0].Type != "redeem" || txs[0].PointsChange != -500 {
		t.Fatalf("first audit row: %+v", txs[0])
	}
	if txs[1].Type != "redeem_reversal" || txs[1].PointsChange != 500 {
		t.Fatalf("second audit row: %+v", txs[1])
	}

	// Dine-in against the same store still works: the failure was confined
	// to the credit insert.
	res, err := s.Redeem(ctx, "admin-1", domain.RoleStaff, acct.PublicID, 500, ModeDineIn)
	if err != nil || res.NewBalance != 500 {
		t.Fatalf("dine_in after compensation: %+v, %v", res, err)
	}
}

func TestRedeem_CentsPerPointConversion(t *testing.T) {
	db := newLoyaltySvcDB(t, allLoyaltyModels()...)
	s := NewLoyaltyService(db, nil)
	s.Policy.CentsPerPoint = 2
	ctx := context.Background()
	acct := seedLoyaltyAccount(t, db, 1000)

	res, err := s.Redeem(ctx, "admin-1", domain.RoleStaff, acct.PublicID, 250, ModeDineIn)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.CreditCents != 500 {
		t.Fatalf("expected 250 points * 2 = 500 cents, got %d", res.CreditCents)
	}
}

func Test_privileged(t *testing.T) {
	if privileged(domain.RoleCustomer) || privileged("") || privileged("root") {
		t.Fatalf("non-privileged roles accepted")
	}
	if !privileged(domain.RoleStaff) || !privileged(domain.RoleAdmin) {
		t.Fatalf("staff/admin should be privileged")
	}
}
