package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/jwt"
	"github.com/studyclub/authpipe/middleware"
	"github.com/studyclub/authpipe/session"
	"github.com/studyclub/authpipe/transport"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = authpipe.New
	_ = authpipe.DefaultConfig

	var _ *authpipe.Client
	var _ *authpipe.Builder
	var _ authpipe.Config
	var _ authpipe.Navigation
	var _ authpipe.Navigator
	var _ authpipe.EventSink
	var _ authpipe.MetricsSnapshot
	var _ *authpipe.StatusError
	var _ session.Backend
	var _ transport.Transport

	var _ error = authpipe.ErrSessionTerminated
	var _ error = authpipe.ErrRefreshTokenInvalid
	var _ error = authpipe.ErrRefreshTokenMalformed
	var _ error = authpipe.ErrTransport
	var _ error = authpipe.ErrRetryExhausted
	var _ error = authpipe.ErrNoSession
	var _ error = authpipe.ErrInvalidCredentials

	var _ func(middleware.Verifier) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*jwt.Manager) func(http.Handler) http.Handler = middleware.RequireJWTOnly

	var _ func(*authpipe.Client, context.Context, transport.Request) (*transport.Response, error) = (*authpipe.Client).Do
	var _ func(*authpipe.Client, context.Context, string) (*transport.Response, error) = (*authpipe.Client).Get
	var _ func(*authpipe.Client, context.Context, string, string) error = (*authpipe.Client).Login
	var _ func(*authpipe.Client, context.Context) error = (*authpipe.Client).Logout
	var _ func(*authpipe.Client, context.Context, string) = (*authpipe.Client).Teardown
	var _ func(context.Context, string) context.Context = authpipe.WithReturnPath
}
