package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim without verifying the signature. Clients
// cannot verify server tokens, so the result is only a scheduling hint. The
// boolean is false for opaque tokens and tokens without exp.
func ExpiresAt(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiresWithin reports whether token's exp falls before now+skew.
// Opaque tokens never report true.
func ExpiresWithin(token string, now time.Time, skew time.Duration) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !now.Add(skew).Before(exp)
}
