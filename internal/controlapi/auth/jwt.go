// Package auth issues and validates bearer tokens for the admin control
// API. There is a single operator role (no users/groups/shares), so the
// claim set collapses to a subject and an issued-at/expiry pair.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("jwt secret must be at least 32 characters")
)

// Claims identifies the operator a token was issued to.
type Claims struct {
	jwt.RegisteredClaims

	// Username is the bootstrap operator principal the token was minted for.
	Username string `json:"username"`
}

// Config configures token issuance and validation.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "s3block".
	Issuer string

	// TokenTTL is the lifetime of an issued token. Default: 24h.
	TokenTTL time.Duration
}

// Service issues and validates operator bearer tokens.
type Service struct {
	cfg Config
}

// NewService constructs a Service, applying defaults for Issuer and TokenTTL.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "s3block"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Service{cfg: cfg}, nil
}

// IssueToken mints a bearer token for username, valid for TokenTTL.
func (s *Service) IssueToken(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, ErrTokenSigningFailed
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature and expiry and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
