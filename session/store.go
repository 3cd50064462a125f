package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const persistTimeout = 5 * time.Second

// Store is the in-process session holder shared by every component of a
// client. The zero value is not usable; use NewStore or Open.
type Store struct {
	mu      sync.RWMutex
	current Session
	present bool

	backend Backend
	log     logrus.FieldLogger
}

// NewStore returns an empty Store that writes through to backend. A nil
// backend keeps the session in memory only.
func NewStore(backend Backend, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		backend: backend,
		log:     log.WithField("component", "session"),
	}
}

// NewMemoryStore returns a Store without durable backing.
func NewMemoryStore() *Store {
	return NewStore(nil, nil)
}

// Open builds a Store and loads any session already persisted in backend.
func Open(ctx context.Context, backend Backend, log logrus.FieldLogger) (*Store, error) {
	s := NewStore(backend, log)
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the current session. The boolean is false when no session
// exists.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.present
}

// AccessToken returns the current access token or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return ""
	}
	return s.current.AccessToken
}

// Set replaces the current session. An empty session is equivalent to Clear.
func (s *Store) Set(sess Session) {
	if sess.Empty() {
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.present = true
	s.persist(sess)
}

// Swap replaces the session only if the current one holds the same tokens
// as expected. It reports whether the replacement happened.
func (s *Store) Swap(expected, next Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present || !s.current.SameTokens(expected) {
		return false
	}
	if next.Empty() {
		s.current = Session{}
		s.present = false
		s.erase()
		return true
	}
	s.current = next
	s.persist(next)
	return true
}

// Clear removes the session. Clearing an absent session is a no-op beyond
// the backend delete.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Session{}
	s.present = false
	s.erase()
}

// Reload replaces the in-memory session with whatever the backend holds,
// without writing back. It is used on startup and when another process
// changes the backing storage.
func (s *Store) Reload(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	sess, ok, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ok && !sess.Empty() {
		s.current = sess
		s.present = true
	} else {
		s.current = Session{}
		s.present = false
	}
	return nil
}

// caller holds s.mu
func (s *Store) persist(sess Session) {
	if s.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.Save(ctx, sess); err != nil {
		s.log.WithError(err).Warn("session persist failed")
	}
}

// caller holds s.mu
func (s *Store) erase() {
	if s.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("session clear failed")
	}
}
