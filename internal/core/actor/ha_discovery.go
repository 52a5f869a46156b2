package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	. "github.com/evdriver/evdriver/internal/util/actorutil"
)

// maxIdentitySnapshotAttempts bounds how many Measurement Collector passes
// HADiscoveryActor will wait through for the charger's cached
// product/serial/firmware before publishing discovery with a placeholder
// identity anyway; a charger whose identity registers never resolve must
// not keep its entities out of Home Assistant forever.
const maxIdentitySnapshotAttempts = 5

// HADiscoveryActor publishes the one-time Home Assistant discovery set for
// the bridge and the charger device, built from domain.BridgeDevice/
// ChargerDevice and the Charger*/Bridge* sensor/switch/input-number/select
// builders in domain/discovery.go. Grounded on the teacher's
// HADiscoveryActor, generalised from its Inverter/ACMeter/BatteryControl
// device set (fetched via GetDevicesInfoRequest) to this driver's single
// charger device, whose identity comes from the Measurement Collector's
// cached product/serial/firmware fields on a Snapshot.
type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *Stash
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	modbusActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int
	snapshotAttempts   int

	logger *zap.Logger
}

func NewHADiscoveryActor(cfg *config.Config, modbusActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      cfg,
		modbusActor: modbusActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(ctx actor.Context) {
	state.behavior.Receive(ctx)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		state.healthyRecv = 0
		state.modbusActorHealthy = false
		state.mqttActorHealthy = false
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MODBUS, Healthy: false}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MQTT, Healthy: false}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.modbusActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if state.modbusActorHealthy && state.mqttActorHealthy {
				state.requestSnapshot(ctx)
				state.behavior.Become(state.WaitingInfoReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT actor or Modbus actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) requestSnapshot(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetSnapshotRequest{}, 5*time.Second), func(err error) any {
		return domain.GetSnapshotResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	})
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetSnapshotResponse:
		state.snapshotAttempts++
		if !msg.HasResponseError() && msg.Snapshot.IdentityCached {
			state.publish(ctx, msg.Snapshot.ProductName, msg.Snapshot.Serial, msg.Snapshot.FirmwareVersion)
			state.behavior.Become(state.Done)
			return
		}
		if state.snapshotAttempts >= maxIdentitySnapshotAttempts {
			state.logger.Warn("hadiscovery@info: charger identity never resolved, publishing with placeholder identity")
			state.publish(ctx, "EV Charger", fmt.Sprintf("%s:%d", state.config.ModbusTCP.Host, state.config.ModbusTCP.Port), "unknown")
			state.behavior.Become(state.Done)
			return
		}
		state.requestSnapshot(ctx)
	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) publish(ctx actor.Context, productName, serial, firmware string) {
	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	chargerDevice := domain.ChargerDevice(productName, serial, firmware)
	chargerDevice.ViaDevice = bridgeDevice.Id

	var sensors []domain.GenericSensor
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)
	sensors = append(sensors, domain.ChargerSensors(chargerDevice)...)

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     domain.ChargerSwitches(chargerDevice),
		InputNumbers: domain.ChargerInputNumbers(chargerDevice),
		Selects:      domain.ChargerSelects(chargerDevice),
	})
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_HA_DISCOVERY, Healthy: true, State: "done"})
	}
}
