package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.json"), zap.NewNop())
	state := s.Load()
	assert.Equal(t, domain.CurrentSchemaVersion, state.Schema)
	assert.Equal(t, domain.ModeManual, state.Intent.Mode)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.json"), zap.NewNop())

	intent := domain.DefaultIntent()
	intent.Mode = domain.ModeAuto
	intent.SetCurrentA = 16
	want := domain.PersistedState{
		Schema: domain.CurrentSchemaVersion,
		Intent: intent,
		OpenSession: &domain.Session{ID: "abc", StartTime: time.Now()},
	}
	require.NoError(t, s.Save(want))

	got := s.Load()
	assert.Equal(t, want.Intent, got.Intent)
	require.NotNil(t, got.OpenSession)
	assert.Equal(t, "abc", got.OpenSession.ID)
}

func TestLoadCorruptFileReturnsDefaultsNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(path, zap.NewNop())
	state := s.Load()
	assert.Equal(t, domain.CurrentSchemaVersion, state.Schema)
}

func TestWritableDetectsUnwritableDirectory(t *testing.T) {
	s := NewStore("/nonexistent-dir-for-evdriver-tests/state.json", zap.NewNop())
	assert.False(t, s.Writable())
}
