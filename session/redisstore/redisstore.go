// Package redisstore persists a session in Redis so several processes on
// different hosts can share one login.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyclub/authpipe/session"
)

// Store implements session.Backend with two string keys, one per token.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a Redis backend. Keys are "<prefix>:access" and
// "<prefix>:refresh". A ttl of zero stores keys without expiry.
func New(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "authpipe"
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) accessKey() string  { return s.prefix + ":access" }
func (s *Store) refreshKey() string { return s.prefix + ":refresh" }
func (s *Store) updatedKey() string { return s.prefix + ":updated_at" }

// Load reads both keys in one round trip.
func (s *Store) Load(ctx context.Context) (session.Session, bool, error) {
	if s.rdb == nil {
		return session.Session{}, false, errors.New("redis client is nil")
	}
	vals, err := s.rdb.MGet(ctx, s.accessKey(), s.refreshKey(), s.updatedKey()).Result()
	if err != nil {
		return session.Session{}, false, fmt.Errorf("load session: %w", err)
	}

	access, _ := vals[0].(string)
	refresh, _ := vals[1].(string)
	if access == "" && refresh == "" {
		return session.Session{}, false, nil
	}

	sess := session.Session{AccessToken: access, RefreshToken: refresh}
	if raw, ok := vals[2].(string); ok && raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			sess.UpdatedAt = ts
		}
	}
	return sess, true, nil
}

// Save writes both keys atomically.
func (s *Store) Save(ctx context.Context, sess session.Session) error {
	if s.rdb == nil {
		return errors.New("redis client is nil")
	}
	updated := ""
	if !sess.UpdatedAt.IsZero() {
		updated = sess.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.accessKey(), sess.AccessToken, s.ttl)
		p.Set(ctx, s.refreshKey(), sess.RefreshToken, s.ttl)
		if updated != "" {
			p.Set(ctx, s.updatedKey(), updated, s.ttl)
		} else {
			p.Del(ctx, s.updatedKey())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear deletes all session keys.
func (s *Store) Clear(ctx context.Context) error {
	if s.rdb == nil {
		return errors.New("redis client is nil")
	}
	if err := s.rdb.Del(ctx, s.accessKey(), s.refreshKey(), s.updatedKey()).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
