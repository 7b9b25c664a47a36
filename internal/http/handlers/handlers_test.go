package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tavolo/go-resto-backend/internal/auth"
	"github.com/tavolo/go-resto-backend/internal/domain"
	"github.com/tavolo/go-resto-backend/internal/http/middleware"
	"github.com/tavolo/go-resto-backend/internal/repo"
	"github.com/tavolo/go-resto-backend/internal/services"
)

// --- fakes ---

type fakeLoginSvc struct {
	sess *auth.Session
	err  error
}

func (f fakeLoginSvc) Login(_ context.Context, _, _, _, _ string) (*auth.Session, error) {
	return f.sess, f.err
}

type fakePromoSvc struct {
	res *services.PromoResult
	err error
}

func (f fakePromoSvc) Validate(_ context.Context, _, _ string, _ int64) (*services.PromoResult, error) {
	return f.res, f.err
}

type fakeLoyaltySvc struct {
	res   *services.RedemptionResult
	err   error
	calls int
}

func (f *fakeLoyaltySvc) Redeem(_ context.Context, _, _, _ string, _ int64, _ string) (*services.RedemptionResult, error) {
	f.calls++
	return f.res, f.err
}

func newHandlersDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func postJSON(r *gin.Engine, path, body string, hdrs map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// --- login ---

func newLoginRouter(svc LoginService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(svc, nil, nil, nil, time.Hour)
	r.POST("/auth/login", h.Login)
	return r
}

func TestLogin_StatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"throttled", services.ErrThrottled, http.StatusTooManyRequests, ErrCodeThrottled},
		{"ip blocked", services.ErrIPBlocked, http.StatusTooManyRequests, ErrCodeIPBlocked},
		{"account locked", services.ErrAccountLocked, http.StatusLocked, ErrCodeAccountLocked},
		{"bad credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials},
		{"store failure", context.DeadlineExceeded, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newLoginRouter(fakeLoginSvc{err: tc.err})
			w := postJSON(r, "/auth/login", `{"email":"a@b.com","password":"x"}`, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", w.Code, tc.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("body: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("code = %q; want %q", resp.Code, tc.wantCode)
			}
		})
	}
}

func TestLogin_ThrottledSetsRetryAfter(t *testing.T) {
	r := newLoginRouter(fakeLoginSvc{err: services.ErrThrottled})
	w := postJSON(r, "/auth/login", `{"email":"a@b.com","password":"x"}`, nil)
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q; want 60", got)
	}
}

func TestLogin_BadPayload(t *testing.T) {
	r := newLoginRouter(fakeLoginSvc{})
	for _, body := range []string{``, `{}`, `{"email":"not-an-email","password":"x"}`, `{"email":"a@b.com"}`} {
		w := postJSON(r, "/auth/login", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d; want 400", body, w.Code)
		}
	}
}

func TestLogin_Success(t *testing.T) {
	sess := &auth.Session{
		AccessToken: "tok",
		TokenType:   "Bearer",
		User:        auth.SessionUser{ID: "u1", Email: "a@b.com", Role: domain.RoleCustomer},
	}
	r := newLoginRouter(fakeLoginSvc{sess: sess})
	w := postJSON(r, "/auth/login", `{"email":"a@b.com","password":"x"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var resp struct {
		Session auth.Session `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp.Session.AccessToken != "tok" || resp.Session.User.ID != "u1" {
		t.Fatalf("unexpected session: %+v", resp.Session)
	}
}

// --- promo ---

func newPromoRouter(svc PromoService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", "u1"); c.Next() })
	h := New(nil, svc, nil, nil, time.Hour)
	r.POST("/promotions/validate", h.ValidatePromo)
	return r
}

func TestValidatePromo_GateRejectionIs200WithReason(t *testing.T) {
	for _, sentinel := range []error{
		services.ErrPromoInvalidCode,
		services.ErrPromoNotActiveYet,
		services.ErrPromoExpired,
		services.ErrPromoUsageLimit,
		services.ErrPromoUserLimit,
		services.ErrPromoMinOrder,
		services.ErrPromoMarginExceeded,
		services.ErrPromoInvalidAmount,
	} {
		r := newPromoRouter(fakePromoSvc{err: sentinel})
		w := postJSON(r, "/promotions/validate", `{"code":"X","cart_total_cents":500}`, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%v: status = %d; want 200", sentinel, w.Code)
		}
		var resp ValidatePromoResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("body: %v", err)
		}
		if resp.Valid || resp.Reason != sentinel.Error() {
			t.Fatalf("%v: unexpected response %+v", sentinel, resp)
		}
	}
}

func TestValidatePromo_MissingCode(t *testing.T) {
	r := newPromoRouter(fakePromoSvc{})
	for _, body := range []string{``, `{}`, `{"code":"   "}`} {
		w := postJSON(r, "/promotions/validate", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d; want 400", body, w.Code)
		}
	}
}

func TestValidatePromo_StoreFailureIs500(t *testing.T) {
	r := newPromoRouter(fakePromoSvc{err: context.DeadlineExceeded})
	w := postJSON(r, "/promotions/validate", `{"code":"X"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
}

func TestValidatePromo_Success(t *testing.T) {
	r := newPromoRouter(fakePromoSvc{res: &services.PromoResult{
		PromotionID: "p1", Type: domain.DiscountPercent, Value: 15,
	}})
	w := postJSON(r, "/promotions/validate", `{"code":"LUNCH15","cart_total_cents":2000}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var resp ValidatePromoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if !resp.Valid || resp.PromotionID != "p1" || resp.Type != domain.DiscountPercent || resp.Value != 15 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// --- loyalty ---

func newLoyaltyRouter(svc LoyaltyService, db *gorm.DB, lookup middleware.IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "admin-1")
		c.Set("userRole", domain.RoleStaff)
		c.Next()
	})
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	h := New(nil, nil, svc, db, time.Hour)
	r.POST("/loyalty/redeem", h.Redeem)
	return r
}

const redeemBody = `{"loyalty_public_id":"fa4dfbe0-c3bf-47bd-b32f-d7de221cf43b","points_to_redeem":500,"mode":"online"}`

func TestRedeem_StatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"forbidden", services.ErrForbiddenRedeem, http.StatusForbidden},
		{"bad id", services.ErrInvalidPublicID, http.StatusBadRequest},
		{"bad points", services.ErrInvalidPoints, http.StatusBadRequest},
		{"bad mode", services.ErrInvalidMode, http.StatusBadRequest},
		{"not found", services.ErrAccountNotFound, http.StatusNotFound},
		{"insufficient", services.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"credit failed", services.ErrCreditIssueFailed, http.StatusInternalServerError},
		{"store failure", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newLoyaltyRouter(&fakeLoyaltySvc{err: tc.err}, newHandlersDB(t), nil)
			w := postJSON(r, "/loyalty/redeem", redeemBody, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRedeem_BadPayload(t *testing.T) {
	r := newLoyaltyRouter(&fakeLoyaltySvc{}, newHandlersDB(t), nil)
	for _, body := range []string{``, `{}`, `{"loyalty_public_id":"x","points_to_redeem":100,"mode":"carrier-pigeon"}`} {
		w := postJSON(r, "/loyalty/redeem", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d; want 400", body, w.Code)
		}
	}
}

func TestRedeem_StoresAndReplaysIdempotentOutcome(t *testing.T) {
	db := newHandlersDB(t)
	svc := &fakeLoyaltySvc{res: &services.RedemptionResult{CreditCents: 500, NewBalance: 1500, CreditID: "cred-1"}}
	lookup := func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		return repo.HasIdempotency(ctx, db, userID, key, now)
	}
	r := newLoyaltyRouter(svc, db, lookup)

	hdrs := map[string]string{middleware.HeaderIdempotencyKey: "once"}
	w := postJSON(r, "/loyalty/redeem", redeemBody, hdrs)
	if w.Code != http.StatusOK {
		t.Fatalf("first: status = %d body=%s", w.Code, w.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("first: service calls = %d; want 1", svc.calls)
	}

	// Replay: served from the stored record, the service is not called again.
	w = postJSON(r, "/loyalty/redeem", redeemBody, hdrs)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: status = %d body=%s", w.Code, w.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("replay re-invoked the service: calls = %d", svc.calls)
	}
	var resp RedeemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("replay body: %v", err)
	}
	if resp.CreditCents != 500 || resp.NewBalance != 1500 || resp.CreditID != "cred-1" {
		t.Fatalf("replay mismatch: %+v", resp)
	}

	// A different key executes normally.
	w = postJSON(r, "/loyalty/redeem", redeemBody, map[string]string{middleware.HeaderIdempotencyKey: "twice"})
	if w.Code != http.StatusOK || svc.calls != 2 {
		t.Fatalf("new key: status=%d calls=%d", w.Code, svc.calls)
	}
}

func TestRedeem_WithoutKeySkipsIdempotencyStore(t *testing.T) {
	db := newHandlersDB(t)
	svc := &fakeLoyaltySvc{res: &services.RedemptionResult{CreditCents: 100, NewBalance: 900}}
	r := newLoyaltyRouter(svc, db, nil)

	w := postJSON(r, "/loyalty/redeem", redeemBody, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var n int64
	if err := db.Model(&domain.Idempotency{}).Count(&n).Error; err != nil || n != 0 {
		t.Fatalf("idempotency rows = %d, %v; want 0", n, err)
	}
}
