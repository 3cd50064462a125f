package authpipe

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAccessTokenExpired marks an attempt rejected because its access
	// token expired. The client resolves it by refreshing; callers only see
	// it wrapped in a refresh or replay failure.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrSessionTerminated is matched by every error that ended the session
	// (the store was cleared and navigation emitted).
	ErrSessionTerminated = errors.New("session terminated")
	// ErrRefreshTokenInvalid means the refresh token was expired, revoked,
	// unknown or missing.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrRefreshTokenMalformed means the auth server could not parse the
	// refresh request.
	ErrRefreshTokenMalformed = errors.New("refresh token malformed")
	// ErrTransport wraps network failures, timeouts and 5xx/429 refresh
	// responses. Credentials are left untouched.
	ErrTransport = errors.New("transport failure")
	// ErrRetryExhausted is matched by the StatusError of a replayed request
	// that was rejected with 401 again.
	ErrRetryExhausted = errors.New("retry exhausted")
	// ErrNoSession is returned by Login-dependent helpers when nothing is stored.
	ErrNoSession = errors.New("no session")
	// ErrInvalidCredentials is returned by Login for rejected credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginUnavailable is returned by Login when the login endpoint
	// cannot be reached or fails with a server error.
	ErrLoginUnavailable = errors.New("login endpoint unavailable")
	// ErrClientClosed is returned by every operation after Close.
	ErrClientClosed = errors.New("client closed")
)

// StatusError is the passthrough failure for a non-success HTTP response
// that the pipeline does not resolve itself (403, 404, 5xx, anonymous 401,
// or a second 401 after refresh).
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	// Retried is set when the response came from a replay after refresh.
	Retried bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports ErrRetryExhausted for a retried 401.
func (e *StatusError) Is(target error) bool {
	return target == ErrRetryExhausted && e.Retried && e.StatusCode == http.StatusUnauthorized
}

// sessionError is a terminal refresh failure. It matches both its own kind
// and ErrSessionTerminated.
type sessionError struct {
	kind  error
	cause error
}

func (e *sessionError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *sessionError) Is(target error) bool {
	return target == e.kind || target == ErrSessionTerminated
}

func (e *sessionError) Unwrap() error {
	return e.cause
}

func newSessionError(kind, cause error) error {
	return &sessionError{kind: kind, cause: cause}
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// IsTerminal reports whether err ended the session.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrSessionTerminated)
}
