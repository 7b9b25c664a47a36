// Package domain defines the persistence models for the ordering backend:
// login attempts and lockouts, promotions and their redemptions, and loyalty
// accounts with their audit trail. These types are mapped with GORM and form
// the core data layer of the application.
package domain

import (
	"time"
)

// Roles recognized by the authorization layer. RoleStaff and RoleAdmin may
// redeem loyalty points on a customer's behalf; RoleCustomer may not.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// Discount types shared by Promotion and SmartDiscount.
const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// User is a credential row consumed by the authenticator the login endpoint
// delegates to. Passwords are stored as bcrypt hashes only.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique login identifier, stored lower-cased.
//   - PasswordHash: bcrypt hash; never serialized to JSON.
//   - Role: customer|staff|admin (enforced by DB constraint).
type User struct {
	ID           string    `json:"id"    gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"     gorm:"type:varchar(255);not null"`
	Role         string    `json:"role"  gorm:"type:varchar(16);not null;default:'customer';check:role IN ('customer','staff','admin')"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// LoginAttempt is an append-only record of one authentication attempt.
// Throttle and escalation decisions are always recomputed from these rows;
// no mutable counter is kept alongside them.
type LoginAttempt struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;index:idx_attempts_email"`
	IP        string    `json:"ip"         gorm:"type:varchar(45);not null;index:idx_attempts_ip,priority:1"`
	UserAgent string    `json:"user_agent" gorm:"type:varchar(512)"`
	Success   bool      `json:"success"    gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_attempts_ip,priority:2"`
}

// TableName returns the database table name for LoginAttempt.
func (LoginAttempt) TableName() string { return "login_attempts" }

// AccountLockout tracks consecutive failed logins per email. The row is
// upserted on each failure (failed_attempts increments atomically in the
// store) and deleted outright on a successful login.
type AccountLockout struct {
	Email          string     `json:"email"           gorm:"type:varchar(255);primaryKey"`
	FailedAttempts int        `json:"failed_attempts" gorm:"not null;default:0"`
	LockedUntil    *time.Time `json:"locked_until"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for AccountLockout.
func (AccountLockout) TableName() string { return "account_lockouts" }

// IPBlock bars an address outright once it crosses the failure-escalation
// threshold. Rows are upserted; an expired block is simply ignored.
type IPBlock struct {
	IP           string    `json:"ip"            gorm:"type:varchar(45);primaryKey"`
	Reason       string    `json:"reason"        gorm:"type:varchar(255);not null"`
	BlockedUntil time.Time `json:"blocked_until" gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for IPBlock.
func (IPBlock) TableName() string { return "ip_blocks" }

// FraudEvent is the fraud-log record written when an IP crosses the block
// threshold. Append-only; consumed by back-office tooling, never read on the
// request path.
type FraudEvent struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	IP        string    `json:"ip"      gorm:"type:varchar(45);not null;index"`
	Email     string    `json:"email"   gorm:"type:varchar(255)"`
	Kind      string    `json:"kind"    gorm:"type:varchar(32);not null"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for FraudEvent.
func (FraudEvent) TableName() string { return "fraud_events" }

// Promotion is a discount code created by the back office. The validator
// treats these rows as read-only; a SmartDiscount override never mutates the
// stored promotion.
//
// Optional limits use pointers: a nil MaxUses/PerUserLimit/MinOrderCents
// means "no limit", while nil StartsAt/EndsAt leaves that side of the time
// window open.
type Promotion struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	Code          string     `json:"code"            gorm:"type:varchar(64);not null;uniqueIndex:ux_promotions_code"`
	Type          string     `json:"type"            gorm:"type:varchar(16);not null;check:type IN ('percent','fixed')"`
	Value         int64      `json:"value"           gorm:"not null"`
	MinOrderCents *int64     `json:"min_order_cents"`
	PerUserLimit  *int       `json:"per_user_limit"`
	MaxUses       *int       `json:"max_uses"`
	StartsAt      *time.Time `json:"starts_at"`
	EndsAt        *time.Time `json:"ends_at"`
	Active        bool       `json:"active"          gorm:"not null;default:true;index"`
	Channel       string     `json:"channel"         gorm:"type:varchar(32)"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Promotion.
func (Promotion) TableName() string { return "promotions" }

// PromoRedemption records one successful use of a promotion. Append-only; a
// promotion's effective usage count is always COUNT(*) over these rows, both
// globally and per user.
type PromoRedemption struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	PromotionID string    `json:"promotion_id" gorm:"type:char(36);not null;index:idx_redemptions_promo_user,priority:1"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_redemptions_promo_user,priority:2"`
	CreatedAt   time.Time `json:"created_at"`

	// Promotion is the parent code; redemptions are cascade-deleted with it.
	Promotion Promotion `json:"-" gorm:"foreignKey:PromotionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PromoRedemption.
func (PromoRedemption) TableName() string { return "promo_redemptions" }

// SmartDiscount is a time-windowed override layered onto a matched promotion
// at validation time. DayOfWeek follows time.Weekday (0 = Sunday); the hour
// window [StartHour, EndHour] is inclusive on both ends.
type SmartDiscount struct {
	ID        string    `json:"id"          gorm:"type:char(36);primaryKey"`
	DayOfWeek int       `json:"day_of_week" gorm:"not null;check:day_of_week BETWEEN 0 AND 6"`
	StartHour int       `json:"start_hour"  gorm:"not null;check:start_hour BETWEEN 0 AND 23"`
	EndHour   int       `json:"end_hour"    gorm:"not null;check:end_hour BETWEEN 0 AND 23"`
	Type      string    `json:"type"        gorm:"type:varchar(16);not null;check:type IN ('percent','fixed')"`
	Value     int64     `json:"value"       gorm:"not null"`
	Active    bool      `json:"active"      gorm:"not null;default:true;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for SmartDiscount.
func (SmartDiscount) TableName() string { return "smart_discounts" }

// LoyaltyAccount holds a customer's point balance. PublicID is the opaque
// UUID handed to point-of-sale clients; the balance is only ever mutated
// through conditional single-statement updates so a concurrent redemption
// can never drive it negative.
type LoyaltyAccount struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	PublicID  string    `json:"public_id" gorm:"type:char(36);not null;uniqueIndex:ux_loyalty_public_id"`
	UserID    string    `json:"user_id"   gorm:"type:varchar(64);not null;index"`
	Points    int64     `json:"points"    gorm:"not null;default:0"`
	Tier      string    `json:"tier"      gorm:"type:varchar(16);not null;default:'bronze'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for LoyaltyAccount.
func (LoyaltyAccount) TableName() string { return "loyalty_accounts" }

// LoyaltyTransaction is the append-only audit trail of balance changes. One
// row is written per redemption that reached the deduction step; the write
// is best-effort and never rolls back the deduction itself.
type LoyaltyTransaction struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	AccountID    string    `json:"account_id"    gorm:"type:char(36);not null;index"`
	AdminID      string    `json:"admin_id"      gorm:"type:varchar(64)"`
	PointsChange int64     `json:"points_change" gorm:"not null"`
	Type         string    `json:"type"          gorm:"type:varchar(24);not null"`
	Mode         string    `json:"mode"          gorm:"type:varchar(16)"`
	BalanceAfter int64     `json:"balance_after" gorm:"not null"`
	Note         string    `json:"note"          gorm:"type:varchar(255)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for LoyaltyTransaction.
func (LoyaltyTransaction) TableName() string { return "loyalty_transactions" }

// UserCredit is an online-mode redemption payout: store credit the customer
// spends at checkout. Rows expire via ExpiresAt; this subsystem creates them
// but never deletes them.
type UserCredit struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;index"`
	AmountCents int64     `json:"amount_cents" gorm:"not null"`
	Source      string    `json:"source"       gorm:"type:varchar(32);not null"`
	ExpiresAt   time.Time `json:"expires_at"   gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for UserCredit.
func (UserCredit) TableName() string { return "user_credits" }
