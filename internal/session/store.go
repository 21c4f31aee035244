// internal/session/store.go
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// ErrNoSession is returned by Load when nothing has been persisted yet.
var ErrNoSession = errors.New("no persisted session state")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists State as a JSON file.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore returns a store writing to path. A leading "~" is expanded.
func NewStore(logger *zap.Logger, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("session path is empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session path %q: %w", path, err)
	}
	return &Store{
		path:   expanded,
		logger: logger.Named("session_store"),
		now:    time.Now,
	}, nil
}

// Path returns the resolved file location.
func (s *Store) Path() string { return s.path }

// Exists reports whether a state file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the persisted state. A missing file yields ErrNoSession.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session state %s: %w", s.path, err)
	}
	s.logger.Debug("Loaded session state.",
		zap.String("path", s.path),
		zap.Int("cookies", len(st.Cookies)),
		zap.Time("saved_at", st.SavedAt))
	return &st, nil
}

// Save writes st atomically: a temp file in the same directory is renamed
// over the target, so a crash never leaves a truncated state behind.
func (s *Store) Save(st *State) error {
	if st == nil {
		return fmt.Errorf("refusing to save a nil session state")
	}
	if st.SavedAt.IsZero() {
		st.SavedAt = s.now().UTC()
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict session file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush session state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to move session state into place: %w", err)
	}

	s.logger.Info("Session state saved.", zap.String("path", s.path), zap.Int("cookies", len(st.Cookies)))
	return nil
}
