package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tavolo/go-resto-backend/internal/auth"
	"github.com/tavolo/go-resto-backend/internal/domain"
)

type stubVerifier struct {
	claims *auth.Claims
	err    error
}

func (s stubVerifier) Verify(string) (*auth.Claims, error) { return s.claims, s.err }

func staffClaims() *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-staff"},
		Email:            "staff@example.com",
		Role:             domain.RoleStaff,
	}
}

func newAuthnRouter(v TokenVerifier, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{BearerAuth(v)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		uid, _ := c.Get(CtxKeyUserID)
		role, _ := c.Get(CtxKeyUserRole)
		c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
	})
	r.GET("/protected", chain...)
	return r
}

func getWithAuth(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestBearerAuth_MissingOrMalformedHeader(t *testing.T) {
	r := newAuthnRouter(stubVerifier{claims: staffClaims()})

	for _, hdr := range []string{"", "Basic abc123", "Bearer", "bearer token"} {
		w := getWithAuth(r, hdr)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d; want 401", hdr, w.Code)
		}
	}
}

func TestBearerAuth_RejectsInvalidToken(t *testing.T) {
	r := newAuthnRouter(stubVerifier{err: errors.New("signature mismatch")})
	if w := getWithAuth(r, "Bearer bogus"); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401", w.Code)
	}

	// Claims with no subject are as good as no claims.
	empty := &auth.Claims{Role: domain.RoleStaff}
	r = newAuthnRouter(stubVerifier{claims: empty})
	if w := getWithAuth(r, "Bearer tok"); w.Code != http.StatusUnauthorized {
		t.Fatalf("empty subject: status = %d; want 401", w.Code)
	}
}

func TestBearerAuth_StashesIdentity(t *testing.T) {
	r := newAuthnRouter(stubVerifier{claims: staffClaims()})
	w := getWithAuth(r, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	body := w.Body.String()
	if body != `{"role":"staff","user_id":"u-staff"}` {
		t.Fatalf("unexpected identity payload: %s", body)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name string
		role string
		want int
	}{
		{"staff allowed", domain.RoleStaff, http.StatusOK},
		{"admin allowed", domain.RoleAdmin, http.StatusOK},
		{"customer denied", domain.RoleCustomer, http.StatusForbidden},
		{"unknown denied", "root", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := staffClaims()
			claims.Role = tc.role
			r := newAuthnRouter(stubVerifier{claims: claims}, RequireRole(domain.RoleStaff, domain.RoleAdmin))
			if w := getWithAuth(r, "Bearer tok"); w.Code != tc.want {
				t.Fatalf("role %q: status = %d; want %d", tc.role, w.Code, tc.want)
			}
		})
	}
}

func TestRequireRole_WithoutAuthIsForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d; want 403", w.Code)
	}
}
