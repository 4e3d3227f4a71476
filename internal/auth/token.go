// ABOUTME: Short-lived connection credential minting and verification
// ABOUTME: Uses HS256 signed JWTs binding a subject identity

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrEmptySecret  = errors.New("signing secret must not be empty")
)

// Verifier defines the interface for credential verification.
type Verifier interface {
	Verify(tokenString string) (subject string, err error)
}

// Minter issues and verifies the short-lived credentials a client presents
// when connecting to the broker. Tokens are HS256 signed JWTs whose "sub"
// claim carries the connecting identity.
type Minter struct {
	secret []byte
}

// NewMinter creates a Minter with the given signing secret.
func NewMinter(secret []byte) (*Minter, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &Minter{secret: secret}, nil
}

// Mint creates a credential for the given subject, valid for ttl.
func (m *Minter) Mint(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify validates the credential and extracts the subject from the "sub" claim.
func (m *Minter) Verify(tokenString string) (subject string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}
