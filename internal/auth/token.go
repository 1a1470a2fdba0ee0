// Package auth verifies the bearer tokens issued by the identity service
// that fronts the marketplace.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/config"
)

var (
	ErrTokenMissing = errors.New("token_missing")
	ErrTokenInvalid = errors.New("token_invalid")
	ErrTokenExpired = errors.New("token_expired")
	ErrNoSecret     = errors.New("auth_secret_not_configured")
)

// Claims carries the authenticated user. Subject is the decimal user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Principal is the identity extracted from a verified token.
type Principal struct {
	UserID snowflake.ID
	Role   string
}

type Tokens struct {
	key   []byte
	clock clock.Clock
}

func NewTokens(cfg config.Config, clk clock.Clock) (*Tokens, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Tokens{key: []byte(secret), clock: clk}, nil
}

// Issue signs a token for userID. Production tokens come from the identity
// service sharing the same secret.
func (t *Tokens) Issue(userID snowflake.ID, role string, ttl time.Duration) (string, error) {
	now := t.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrTokenMissing
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}

	id, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, ErrTokenInvalid
	}
	return Principal{UserID: snowflake.ID(id), Role: strings.ToLower(strings.TrimSpace(claims.Role))}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
