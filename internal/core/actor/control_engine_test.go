package actor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/persistence"
	"github.com/evdriver/evdriver/internal/core/port"
	"github.com/evdriver/evdriver/internal/core/propertystore"
)

func testControlEngine(t *testing.T) *ControlEngineActor {
	t.Helper()
	cfg := config.Default()
	cfg.Persistence.Path = filepath.Join(t.TempDir(), "state.json")
	store := persistence.NewStore(cfg.Persistence.Path, zap.NewNop())
	props := propertystore.NewStore(&eventstream.EventStream{})
	a := NewControlEngineActor(&cfg, nil, props, store, zap.NewNop())
	return a
}

func TestShouldWriteOnFirstDecision(t *testing.T) {
	a := testControlEngine(t)
	assert.True(t, a.shouldWrite(port.ModeOutput{TargetCurrentA: 10, Enabled: true}))
}

func TestShouldWriteSkipsUnchangedWithinHeartbeat(t *testing.T) {
	a := testControlEngine(t)
	a.haveWritten = true
	a.lastWrittenCurrentA = 10.0
	a.lastWrittenEnabled = true
	a.lastWriteAt = time.Now()

	assert.False(t, a.shouldWrite(port.ModeOutput{TargetCurrentA: 10.04, Enabled: true}))
}

func TestShouldWriteOnIntegerAmpChange(t *testing.T) {
	a := testControlEngine(t)
	a.haveWritten = true
	a.lastWrittenCurrentA = 10.0
	a.lastWrittenEnabled = true
	a.lastWriteAt = time.Now()

	assert.True(t, a.shouldWrite(port.ModeOutput{TargetCurrentA: 11.0, Enabled: true}))
}

func TestShouldWriteOnEnabledFlagChange(t *testing.T) {
	a := testControlEngine(t)
	a.haveWritten = true
	a.lastWrittenCurrentA = 10.0
	a.lastWrittenEnabled = true
	a.lastWriteAt = time.Now()

	assert.True(t, a.shouldWrite(port.ModeOutput{TargetCurrentA: 10.0, Enabled: false}))
}

func TestShouldWriteOnHeartbeatElapsed(t *testing.T) {
	a := testControlEngine(t)
	a.haveWritten = true
	a.lastWrittenCurrentA = 10.0
	a.lastWrittenEnabled = true
	a.lastWriteAt = time.Now().Add(-time.Duration(a.config.Control.HeartbeatSec+1) * time.Second)

	assert.True(t, a.shouldWrite(port.ModeOutput{TargetCurrentA: 10.0, Enabled: true}))
}

func TestShouldWriteOnPhaseCommandRequested(t *testing.T) {
	a := testControlEngine(t)
	a.haveWritten = true
	a.lastWrittenCurrentA = 10.0
	a.lastWrittenEnabled = true
	a.lastWriteAt = time.Now()

	phase := 3
	assert.True(t, a.shouldWrite(port.ModeOutput{TargetCurrentA: 10.0, Enabled: true, PhaseCommand: &phase}))
}

func TestIntentChangedIgnoresScheduleAndTimezone(t *testing.T) {
	a := domain.DefaultIntent()
	b := domain.DefaultIntent()
	b.Timezone = "Europe/Madrid"
	b.Schedule = []domain.ScheduleWindow{{Start: 0, End: 60}}
	assert.False(t, intentChanged(a, b))

	b.StartStop = 1
	assert.True(t, intentChanged(a, b))
}
