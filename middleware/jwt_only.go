package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/studyclub/authpipe/jwt"
)

// JWTVerifier verifies access tokens issued by a jwt.Manager. Check, when
// set, runs after signature and expiry validation and can reject tokens
// that are cryptographically valid but revoked.
type JWTVerifier struct {
	Manager *jwt.Manager
	Check   func(ctx context.Context, claims *jwt.AccessClaims) error
}

func (v JWTVerifier) VerifyAccess(ctx context.Context, token string) (Principal, error) {
	if v.Manager == nil {
		return Principal{}, errors.New("nil jwt manager")
	}
	claims, err := v.Manager.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	if v.Check != nil {
		if err := v.Check(ctx, claims); err != nil {
			return Principal{}, err
		}
	}
	return Principal{Subject: claims.Subject, SessionID: claims.SID}, nil
}

// RequireJWTOnly verifies signature and expiry only, without consulting any
// session state.
func RequireJWTOnly(m *jwt.Manager) func(http.Handler) http.Handler {
	return Guard(JWTVerifier{Manager: m})
}
