// Package resilience holds the client-side guards consulted by the API
// client: per-scope rate-limit tracking, a local request budget and a
// concurrency bulkhead. Rate-limit exhaustion and the budget can be shared
// between server processes through a file-locked state store.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

const (
	// StateFileName is the default state file name.
	StateFileName = "state.json"

	// DefaultDirName is the subdirectory within the cache dir.
	DefaultDirName = "resilience"
)

// Store persists State to a JSON file in dir. Every operation holds an
// exclusive flock on dir/.lock, so several server processes sharing one
// credential set see each other's exhaustion marks and budget spend.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, or at the user cache directory
// when dir is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Store{dir: dir}
}

func defaultStateDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		if d, err := os.UserCacheDir(); err == nil && d != "" {
			base = d
		} else {
			base = os.TempDir()
		}
	}
	return filepath.Join(base, "lightcast-mcp", DefaultDirName)
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the state file path.
func (s *Store) Path() string { return filepath.Join(s.dir, StateFileName) }

// LockTimeout bounds how long an operation waits for another process to
// release the lock. Past it the operation runs unlocked; a lost update costs
// at most one extra request against an exhausted scope.
const LockTimeout = 100 * time.Millisecond

// locked runs fn while holding the directory lock, or without it if the lock
// is contended for longer than LockTimeout.
func (s *Store) locked(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	fl := flock.New(filepath.Join(s.dir, ".lock"))
	ok, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	switch {
	case err != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("locking state dir: %w", err)
	case ok:
		defer func() { _ = fl.Unlock() }()
	}
	return fn()
}

// Load returns the persisted state, or an empty one if the file is missing,
// corrupt or written by another schema version.
func (s *Store) Load() (*State, error) {
	var state *State
	err := s.locked(func() error {
		var err error
		state, err = s.read()
		return err
	})
	return state, err
}

// Save replaces the persisted state.
func (s *Store) Save(state *State) error {
	return s.locked(func() error { return s.write(state) })
}

// Update applies fn to the persisted state as one locked read-modify-write.
// Nothing is written if fn returns an error.
func (s *Store) Update(fn func(*State) error) error {
	return s.locked(func() error {
		state, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return s.write(state)
	})
}

// Clear removes the state file.
func (s *Store) Clear() error {
	return s.locked(func() error {
		if err := os.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// Exists reports whether a state file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if json.Unmarshal(data, &state) != nil || state.Version != StateVersion {
		return NewState(), nil
	}
	if state.Scopes == nil {
		state.Scopes = make(map[string]RateLimitState)
	}
	return &state, nil
}

// write goes through a temp file in the same directory so readers never see
// a partial file, even when the lock timed out.
func (s *Store) write(state *State) error {
	state.Version = StateVersion
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, StateFileName+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	return os.Rename(tmp.Name(), s.Path())
}
