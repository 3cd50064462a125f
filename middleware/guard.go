package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Principal is the authenticated caller of a guarded handler.
type Principal struct {
	Subject   string
	SessionID string
	Token     string
}

// Verifier validates a bearer access token.
type Verifier interface {
	VerifyAccess(ctx context.Context, token string) (Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Principal, error)

func (f VerifierFunc) VerifyAccess(ctx context.Context, token string) (Principal, error) {
	return f(ctx, token)
}

type principalContextKey struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// Guard rejects requests without a valid bearer token with 401 and a
// WWW-Authenticate challenge. Accepted requests carry their Principal in
// the request context.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w, "")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "")
				return
			}

			p, err := v.VerifyAccess(r.Context(), token)
			if err != nil {
				unauthorized(w, "invalid_token")
				return
			}
			p.Token = token

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, code string) {
	challenge := "Bearer"
	if code != "" {
		challenge += ` error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
