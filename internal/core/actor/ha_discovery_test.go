package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/util/actorutil"
)

// fakeModbusActor answers health checks as healthy and returns a
// Snapshot whose IdentityCached flips true only after a configured
// number of attempts, so tests can exercise both the fast-path and the
// maxIdentitySnapshotAttempts fallback.
type fakeModbusActor struct {
	id               string
	resolveOnAttempt int
	attempts         int
}

func (f *fakeModbusActor) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: f.id, Healthy: true})
	case domain.GetSnapshotRequest:
		f.attempts++
		ctx.Respond(domain.GetSnapshotResponse{
			Snapshot: domain.Snapshot{
				IdentityCached:  f.attempts >= f.resolveOnAttempt,
				ProductName:     "Test Charger",
				Serial:          "SN-1",
				FirmwareVersion: "1.0.0",
			},
		})
	}
}

// fakeMQTTActor answers health checks as healthy and records the
// PublishDiscoveryRequest it receives so the test can assert on it.
type fakeMQTTActor struct {
	id        string
	published chan domain.PublishDiscoveryRequest
}

func (f *fakeMQTTActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: f.id, Healthy: true})
	case domain.PublishDiscoveryRequest:
		f.published <- msg
	}
}

func TestHADiscoveryActorPublishesOnceIdentityResolves(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	modbusPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &fakeModbusActor{id: domain.ACTOR_ID_MODBUS, resolveOnAttempt: 2}
	}))
	defer root.Stop(modbusPID)

	published := make(chan domain.PublishDiscoveryRequest, 1)
	mqttPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &fakeMQTTActor{id: domain.ACTOR_ID_MQTT, published: published}
	}))
	defer root.Stop(mqttPID)

	cfg := config.Default()
	discoveryPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, modbusPID, mqttPID, logger)
	}))
	defer root.Stop(discoveryPID)

	select {
	case req := <-published:
		assert.NotEmpty(t, req.Sensors)
		assert.NotEmpty(t, req.Switches)
		assert.NotEmpty(t, req.InputNumbers)
	case <-time.After(5 * time.Second):
		t.Fatal("discovery was never published")
	}

	res, err := root.RequestFuture(discoveryPID, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, health.Healthy)
}

func TestHADiscoveryActorFallsBackToPlaceholderIdentity(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	modbusPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &fakeModbusActor{id: domain.ACTOR_ID_MODBUS, resolveOnAttempt: maxIdentitySnapshotAttempts + 10}
	}))
	defer root.Stop(modbusPID)

	published := make(chan domain.PublishDiscoveryRequest, 1)
	mqttPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &fakeMQTTActor{id: domain.ACTOR_ID_MQTT, published: published}
	}))
	defer root.Stop(mqttPID)

	cfg := config.Default()
	discoveryPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, modbusPID, mqttPID, logger)
	}))
	defer root.Stop(discoveryPID)

	select {
	case req := <-published:
		assert.NotEmpty(t, req.Sensors)
	case <-time.After(5 * time.Second):
		t.Fatal("discovery was never published with placeholder identity")
	}
}
