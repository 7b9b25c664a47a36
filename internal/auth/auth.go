// Package auth implements the credential authenticator the login endpoint
// delegates to, and the bearer-token verification consumed by the protected
// endpoints. Passwords are verified against bcrypt hashes stored on the user
// row; successful logins are answered with a signed JWT session token.
//
// The login service treats this package as an opaque collaborator: it only
// observes success or failure and never inspects why authentication failed.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tavolo/go-resto-backend/internal/repo"
)

// ErrBadCredentials is returned for any authentication failure: unknown
// email, wrong password, or a malformed input. Callers must not surface
// which factor failed.
var ErrBadCredentials = errors.New("invalid email or password")

// SessionUser is the public identity embedded in a session.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the established login result returned to clients.
type Session struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        SessionUser `json:"user"`
}

// Claims is the JWT payload carried by session tokens. Role travels in the
// token so the authorization middleware can gate privileged endpoints
// without a user lookup per request.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service authenticates credential rows and issues/verifies session tokens.
type Service struct {
	// DB is the GORM handle used for user lookups.
	DB *gorm.DB
	// Secret signs session tokens (HS256).
	Secret []byte
	// Issuer is stamped into the iss claim.
	Issuer string
	// TokenTTL bounds session lifetime.
	TokenTTL time.Duration
}

// NewService constructs an auth Service with a default one-day session TTL.
func NewService(db *gorm.DB, secret []byte, issuer string) *Service {
	return &Service{DB: db, Secret: secret, Issuer: issuer, TokenTTL: 24 * time.Hour}
}

// Authenticate verifies email/password against the users table and returns
// an established session. Every failure mode collapses to ErrBadCredentials
// except raw store errors, which propagate so callers can distinguish
// "wrong password" from "store down".
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		// Burn a comparison so unknown emails cost the same as wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B4TKh/zQ1mKQZxKxQfC9kGpS4y9W"), []byte(password))
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	now := time.Now().UTC()
	exp := now.Add(s.TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: u.Email,
		Role:  u.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		User:        SessionUser{ID: u.ID, Email: u.Email, Role: u.Role},
	}, nil
}

// Verify parses and validates a session token, returning its claims.
// Only HS256 tokens signed with the service secret are accepted.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// HashPassword produces a bcrypt hash suitable for storing on a user row.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
