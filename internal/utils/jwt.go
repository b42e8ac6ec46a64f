package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ServiceToken represents a signed JWT handed to a downstream service (the
// Discord bot) so it can poll the status endpoints. Token is the serialized
// JWT and Exp its UTC expiry.
type ServiceToken struct {
	Token string
	Exp   time.Time
}

// NewServiceToken builds and signs an HS256 JWT for the named service. The
// claims are the standard subject (sub), issued at (iat) and expiration
// (exp).
func NewServiceToken(secret, subject string, ttl time.Duration) (ServiceToken, error) {
	if secret == "" {
		return ServiceToken{}, errors.New("empty signing secret")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return ServiceToken{}, err
	}
	return ServiceToken{Token: signed, Exp: exp}, nil
}

// ParseServiceToken verifies raw against secret and returns its subject.
// Only HMAC signatures are accepted and expired tokens are rejected.
func ParseServiceToken(secret, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything but HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !tok.Valid {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
