// Package filestore persists a session as a YAML file in the user's config
// directory. Writes go to a temp file in the same directory and are renamed
// into place so readers never observe a partial file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/studyclub/authpipe/session"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

type document struct {
	Session session.Session `yaml:"session"`
}

// Store implements session.Backend on a single file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a file backend rooted at path. The parent directory is
// created on first Save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (f *Store) Path() string {
	return f.path
}

// Load reads the session file. A missing or empty file reports no session.
func (f *Store) Load(_ context.Context) (session.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return session.Session{}, false, nil
		}
		return session.Session{}, false, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return session.Session{}, false, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return session.Session{}, false, fmt.Errorf("decode session file: %w", err)
	}
	if doc.Session.Empty() {
		return session.Session{}, false, nil
	}
	return doc.Session, true, nil
}

// Save writes sess atomically with owner-only permissions.
func (f *Store) Save(_ context.Context, sess session.Session) error {
	data, err := yaml.Marshal(document{Session: sess})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Clear deletes the session file. A missing file is not an error.
func (f *Store) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the session file is created, rewritten or
// removed, until ctx is done. The parent directory is watched because
// atomic renames replace the file's inode.
func (f *Store) Watch(ctx context.Context, log logrus.FieldLogger, onChange func()) error {
	if onChange == nil {
		return errors.New("nil change callback")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.path)
	go func() {
		defer func() {
			_ = w.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Debug("session file watcher error")
			}
		}
	}()

	return nil
}
