package account

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// TokenIssuer signs and verifies HS256 session tokens. The token subject is
// the account email and the token id is the session id.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewTokenIssuer builds an issuer. An empty secret is replaced by a random
// one, which invalidates outstanding tokens on restart.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration, clock clockwork.Clock) (*TokenIssuer, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl, clock: clock}, nil
}

// Issue returns a signed token for the session (email, id).
func (t *TokenIssuer) Issue(email, id string, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   email,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (t *TokenIssuer) Parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("token missing subject or id")
	}
	return claims, nil
}
