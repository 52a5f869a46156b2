// Package persistence implements the single on-disk JSON document backing
// Intent, the open Session, and closed-session history, per spec.md §4.7.
// This is the one component built directly on the standard library: no
// example repo in the retrieval pack carries a small embedded-KV or
// atomic-file library suited to "one JSON document" (see DESIGN.md).
package persistence

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/evdriver/evdriver/internal/core/domain"
	"go.uber.org/zap"
)

// Store owns the on-disk path and performs atomic writes via a temp file
// in the same directory followed by os.Rename, which is atomic on the
// same filesystem (POSIX rename semantics).
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load reads the persisted document. A missing, corrupt, or unreadable
// file is never fatal: it is logged and a default document (current
// schema version, domain.DefaultIntent(), no session or history) is
// returned instead, per spec.md §4.7.
func (s *Store) Load() domain.PersistedState {
	defaults := domain.PersistedState{Schema: domain.CurrentSchemaVersion, Intent: domain.DefaultIntent()}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("persistence: could not read state file, starting from defaults", zap.Error(err), zap.String("path", s.path))
		}
		return defaults
	}

	var state domain.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("persistence: state file corrupt, starting from defaults", zap.Error(err), zap.String("path", s.path))
		return defaults
	}
	if state.Schema == 0 {
		state.Schema = domain.CurrentSchemaVersion
	}
	return state
}

// Save atomically overwrites the persisted document. Errors are returned
// for the caller to log and retry on the next intent change; a failed
// save never halts the control loop.
func (s *Store) Save(state domain.PersistedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".evdriver-state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

// Writable reports whether the configured path's directory can be
// written to, used at startup so the process can exit with code 3
// (persistence path unwritable) instead of failing on the first tick.
func (s *Store) Writable() bool {
	dir := filepath.Dir(s.path)
	probe := filepath.Join(dir, ".evdriver-writable-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}
