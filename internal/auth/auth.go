// Package auth issues and verifies JWT access tokens and hashes passwords.
// Both concerns are thin wrappers over golang-jwt and bcrypt; verification
// errors are returned as produced by the jwt library so the HTTP error
// translators can classify them (expired vs invalid).
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = errors.New("JWT_SECRET is not configured")

// Claims is the token payload: the user's id, email and role.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a Tokens bound to secret, issuing tokens valid for ttl.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the given user.
func (t *Tokens) Issue(userID, email, role string) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses raw and returns its claims. Errors wrap the jwt sentinels
// (jwt.ErrTokenExpired, jwt.ErrTokenMalformed, ...).
func (t *Tokens) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of password at the given cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
