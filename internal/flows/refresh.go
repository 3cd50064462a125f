package flows

import (
	"context"
	"errors"
	"time"

	"github.com/studyclub/authpipe/endpoint"
	"github.com/studyclub/authpipe/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureNoSession: nothing to refresh with. Treated as invalid.
	RefreshFailureNoSession
	RefreshFailureRejected
	RefreshFailureMalformed
	RefreshFailureTransport
)

// RefreshResult carries the stored session or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Session session.Session
	// Superseded is set when the session changed (login or logout) while
	// the refresh was in flight; the new tokens were discarded.
	Superseded bool
	Rotated    bool
}

type RefreshSessionStore interface {
	Get() (session.Session, bool)
	Swap(expected, next session.Session) bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Store     RefreshSessionStore
	Refresher endpoint.Refresher
	Now       func() time.Time
	Warn      func(string, ...any)
}

// RunRefresh exchanges the stored refresh token and writes the new pair
// back before returning.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	current, ok := deps.Store.Get()
	if !ok || current.RefreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNoSession}
	}

	tokens, err := deps.Refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, endpoint.ErrTokenRejected):
			return RefreshResult{Failure: RefreshFailureRejected, Err: err}
		case errors.Is(err, endpoint.ErrMalformed):
			return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureTransport, Err: err}
		}
	}

	next := session.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UpdatedAt:    deps.now(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	if !deps.Store.Swap(current, next) {
		if deps.Warn != nil {
			deps.Warn("session changed during refresh; discarding refreshed tokens")
		}
		latest, _ := deps.Store.Get()
		return RefreshResult{Failure: RefreshFailureNone, Session: latest, Superseded: true}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		Session: next,
		Rotated: next.RefreshToken != current.RefreshToken,
	}
}

func (d RefreshDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
