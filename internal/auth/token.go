package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrOpaqueToken = errors.New("auth: token is not a JWT")

// Inspect decodes the claims of a backend access token without verifying it.
func Inspect(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Claims{}, ErrOpaqueToken
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, errors.Join(ErrOpaqueToken, err)
	}
	return claims, nil
}

// Lifetime returns how long the token remains valid at now.
// ok is false when the token carries no exp claim or cannot be decoded.
func Lifetime(token string, now time.Time) (time.Duration, bool) {
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt == nil {
		return 0, false
	}
	left := claims.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}
