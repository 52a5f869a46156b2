package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/service"
	"github.com/evdriver/evdriver/internal/util/actorutil"
	"github.com/evdriver/evdriver/pkg/evmodbus"
)

// TestModbusActorUnreachableHost exercises the starting path against a
// host nothing is listening on: Connect fails, and the actor must settle
// into DefaultReceive reporting unhealthy rather than panicking, per the
// "best-effort initial connect" note on ModbusActor.StartingReceive.
func TestModbusActorUnreachableHost(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	cfg := evmodbus.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1 // nothing listens on port 1
	client := evmodbus.NewClient(cfg)

	regs := config.Default().RegisterMap
	collector := service.NewCollector(regs, 1, 200)

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(client, collector, logger) })
	pid := context.Spawn(props)
	defer context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.False(t, resp.Healthy)
	assert.Equal(t, domain.ACTOR_ID_MODBUS, resp.Id)
}

// TestModbusActorGetSnapshotReportsErrorWithoutConnection checks that a
// GetSnapshotRequest against an unreachable host comes back as a response
// carrying field errors/missing values, never a dropped future.
func TestModbusActorGetSnapshotReportsErrorWithoutConnection(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	cfg := evmodbus.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	client := evmodbus.NewClient(cfg)

	regs := config.Default().RegisterMap
	collector := service.NewCollector(regs, 1, 200)

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(client, collector, logger) })
	pid := context.Spawn(props)
	defer context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.GetSnapshotRequest{}, 5*time.Second).Result()
	assert.NoError(t, err)
	resp, ok := result.(domain.GetSnapshotResponse)
	assert.True(t, ok)
	assert.False(t, resp.Snapshot.Voltage.L1.Ok)
	assert.False(t, resp.Snapshot.IdentityCached)
}
