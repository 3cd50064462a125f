package flows

import (
	"context"
	"errors"
	"time"

	"github.com/studyclub/authpipe/endpoint"
	"github.com/studyclub/authpipe/session"
)

type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInput
	LoginFailureCredentials
	LoginFailureUnavailable
)

type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Session session.Session
}

type LoginSessionStore interface {
	Set(session.Session)
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Authenticator endpoint.Authenticator
	Store         LoginSessionStore
	Now           func() time.Time
}

// RunLogin authenticates and stores the issued session.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	if username == "" || password == "" {
		return LoginResult{Failure: LoginFailureInput, Err: errors.New("username and password are required")}
	}

	tokens, err := deps.Authenticator.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, endpoint.ErrInvalidCredentials) {
			return LoginResult{Failure: LoginFailureCredentials, Err: err}
		}
		return LoginResult{Failure: LoginFailureUnavailable, Err: err}
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	sess := session.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UpdatedAt:    now(),
	}
	deps.Store.Set(sess)
	return LoginResult{Session: sess}
}
