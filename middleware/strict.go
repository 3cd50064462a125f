package middleware

import (
	"context"
	"net/http"

	"github.com/studyclub/authpipe/jwt"
)

// RequireStrict verifies the token like RequireJWTOnly and then asks check
// whether the session behind it is still live.
func RequireStrict(m *jwt.Manager, check func(ctx context.Context, claims *jwt.AccessClaims) error) func(http.Handler) http.Handler {
	return Guard(JWTVerifier{Manager: m, Check: check})
}
