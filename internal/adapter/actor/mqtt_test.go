package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/util"
	"github.com/evdriver/evdriver/internal/util/actorutil"
)

// TestMQTTActorHealth exercises the connect/subscribe happy path against a
// broker reachable at the test config's address and checks that the actor
// settles into DefaultReceive and answers a health check, mirroring the
// teacher's TestMQTTActor.
func TestMQTTActorHealth(t *testing.T) {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	stream := &eventstream.EventStream{}
	props := propertystore.NewStore(stream)

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMQTTActor(&cfg, stream, context, logger)
	}))
	defer context.Stop(pid)

	time.Sleep(2 * time.Second)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		t.Skip("no MQTT broker reachable in this environment")
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MQTT, resp.Id)

	props.Publish("/Mode", domain.ModeAuto.String())
	props.Publish("/Ac/Power", 1234.5)

	time.Sleep(500 * time.Millisecond)
}
