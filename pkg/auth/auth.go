// Package auth guards the network surfaces with a shared secret. The
// secret both signs short-lived HS256 JWTs (issued over the HTTP API)
// and is itself accepted as a static token, so simple scripted clients
// can skip the token exchange. An empty secret disables auth entirely.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 8 * time.Hour

// Authenticator validates client tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// New builds an authenticator from the shared secret. TTL bounds issued
// token lifetimes; zero means 8 hours.
func New(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	a := &Authenticator{ttl: ttl}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// Enabled reports whether clients need a token at all.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Issue signs a JWT for the given subject.
func (a *Authenticator) Issue(subject string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("auth is disabled, no tokens to issue")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "rigd",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify accepts either a JWT signed with the secret or the raw secret
// itself. With auth disabled every token (including none) passes.
func (a *Authenticator) Verify(token string) error {
	if !a.Enabled() {
		return nil
	}
	token = StripBearer(token)
	if token == "" {
		return fmt.Errorf("missing token")
	}

	if subtle.ConstantTimeCompare([]byte(token), a.secret) == 1 {
		return nil
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// StripBearer removes a case-insensitive "Bearer " prefix, if present.
func StripBearer(value string) string {
	trimmed := strings.TrimSpace(value)
	const prefix = "bearer "
	if len(trimmed) >= len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return trimmed[len(prefix):]
	}
	return trimmed
}
