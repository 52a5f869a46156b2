package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/persistence"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/core/service"
	"github.com/evdriver/evdriver/internal/util"
	"github.com/evdriver/evdriver/internal/util/actorutil"
	"github.com/evdriver/evdriver/pkg/evmodbus"
)

// TestMasterOfPuppetsStartsTreeAndExposesControlEnginePID exercises the
// full spawn order against an unreachable Modbus host and (likely)
// unreachable MQTT broker: the Master must still come up, answer health
// checks (reporting unhealthy children rather than hanging), and hand
// back the Control Engine's PID via GetControlEnginePID, mirroring the
// teacher's TestMasterActor.
func TestMasterOfPuppetsStartsTreeAndExposesControlEnginePID(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	cfg := util.LoadTestConfig()
	cfg.Persistence.Path = t.TempDir() + "/state.json"

	modbusCfg := evmodbus.DefaultConfig()
	modbusCfg.Host = "127.0.0.1"
	modbusCfg.Port = 1 // nothing listens on port 1
	modbusClient := evmodbus.NewClient(modbusCfg)
	collector := service.NewCollector(cfg.RegisterMap, cfg.ModbusTCP.SocketUnitID, cfg.ModbusTCP.StationUnitID)
	persist := persistence.NewStore(cfg.Persistence.Path, logger)
	stream := &eventstream.EventStream{}
	props := propertystore.NewStore(stream)

	masterProps := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, root, stream, props, persist, modbusClient, collector, logger)
	})
	pid, err := root.SpawnNamed(masterProps, "master-test")
	assert.NoError(t, err)
	defer root.Stop(pid)

	time.Sleep(1 * time.Second)

	res, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	assert.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MASTER, health.Id)

	pidRes, err := root.RequestFuture(pid, GetControlEnginePID{}, 2*time.Second).Result()
	assert.NoError(t, err)
	ceResult, ok := pidRes.(ControlEnginePIDResult)
	assert.True(t, ok)
	assert.NotNil(t, ceResult.PID)
}
