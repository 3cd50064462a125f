package endpoint

import (
	"context"
	"errors"
)

var (
	// ErrTokenRejected means the server no longer accepts the refresh token
	// (expired, revoked or unknown).
	ErrTokenRejected = errors.New("refresh token rejected")
	// ErrMalformed means the server could not parse the refresh request or
	// token. Repeating it cannot succeed.
	ErrMalformed = errors.New("refresh request malformed")
	// ErrUnavailable covers network failures, timeouts and server errors.
	ErrUnavailable = errors.New("auth endpoint unavailable")
	// ErrInvalidCredentials is returned by Login for rejected credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Tokens is a freshly issued credential pair. RefreshToken may be empty when
// the server does not rotate refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Refresher exchanges a refresh token for new tokens.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Authenticator exchanges user credentials for tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Tokens, error)
}
