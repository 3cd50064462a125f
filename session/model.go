package session

import (
	"context"
	"time"
)

// Session is the client-held credential pair. A Session is replaced
// wholesale; no component mutates its fields in place.
type Session struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Empty reports whether s carries no credentials at all.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// SameTokens reports whether s and o carry the same credential pair.
// UpdatedAt is ignored: a copy read back from a backend loses its monotonic
// clock reading and may come back in another location.
func (s Session) SameTokens(o Session) bool {
	return s.AccessToken == o.AccessToken && s.RefreshToken == o.RefreshToken
}

// Backend is the durable side of a Store. Implementations must be safe for
// concurrent use.
type Backend interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, sess Session) error
	Clear(ctx context.Context) error
}
