package actor

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"

	adactor "github.com/evdriver/evdriver/internal/adapter/actor"
	admqtt "github.com/evdriver/evdriver/internal/adapter/mqtt"
	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/persistence"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/core/service"
	. "github.com/evdriver/evdriver/internal/util/actorutil"
	"github.com/evdriver/evdriver/pkg/evmodbus"
)

// GetControlEnginePID lets the composition root (cmd/api/main.go) recover
// the Control Engine's PID once the actor tree has finished starting, so
// the HTTP server can push commands into its Command Inbox without main
// having to spawn any actor itself.
type GetControlEnginePID struct{}
type ControlEnginePIDResult struct{ PID *actor.PID }

// MasterOfPuppetsActor is the top-level supervisor, grounded on the
// teacher's MasterOfPuppetsActor: it spawns and supervises the Modbus
// actor, the Control Engine, the Poll Scheduler, the MQTT publish-bus
// exporter, and (when enabled) the HA-discovery publisher, and routes
// parsed MQTT commands into the Control Engine's Command Inbox the same
// way the teacher routed them into the battery-control actor.
type MasterOfPuppetsActor struct {
	config config.Config
	root   *actor.RootContext

	stream *eventstream.EventStream
	props  *propertystore.Store
	persist *persistence.Store

	modbusClient *evmodbus.Client
	collector    *service.Collector

	behavior actor.Behavior
	stash    *Stash

	modbusActor       *actor.PID
	controlEngine     *actor.PID
	schedulerActor    *actor.PID
	mqttActor         *actor.PID
	haDiscoveryActor  *actor.PID

	currentHealthCheck healthCheckResult
	logger             *zap.Logger
}

type healthCheckResult struct {
	modbusHealthy, controlHealthy, schedulerHealthy, mqttHealthy bool
	checksReceived                                               int
	respondTo                                                    *actor.PID
}

func NewMasterOfPuppetsActor(cfg config.Config, root *actor.RootContext, stream *eventstream.EventStream,
	props *propertystore.Store, persist *persistence.Store, modbusClient *evmodbus.Client, collector *service.Collector,
	logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:       cfg,
		root:         root,
		stream:       stream,
		props:        props,
		persist:      persist,
		modbusClient: modbusClient,
		collector:    collector,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_MASTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(ctx actor.Context) {
	state.behavior.Receive(ctx)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		modbusPID, err := state.startModbusActor(ctx)
		if err != nil {
			panic(err)
		}
		state.modbusActor = modbusPID

		controlPID, err := state.startControlEngineActor(ctx)
		if err != nil {
			panic(err)
		}
		state.controlEngine = controlPID

		schedulerPID, err := state.startSchedulerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.schedulerActor = schedulerPID

		mqttPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttPID

		if state.config.MQTT.HADiscoveryEnable {
			haPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haPID
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case GetControlEnginePID:
		ctx.Respond(ControlEnginePIDResult{PID: state.controlEngine})
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck = healthCheckResult{respondTo: ctx.Sender()}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MODBUS, Healthy: false}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.controlEngine, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_CONTROL, Healthy: false}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.schedulerActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_SCHEDULER, Healthy: false}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{Id: domain.ACTOR_ID_MQTT, Healthy: false}
		})
		ctx.SetReceiveTimeout(1 * time.Second)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		cmd, err := commandFromMQTT(*msg.Command)
		if err != nil {
			state.logger.Warn("master@default: could not decode MQTT command", zap.Error(err))
			return
		}
		ctx.Send(state.controlEngine, domain.IncomingCommand{Command: cmd})
	case *actor.Terminated:
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS) {
			state.logger.Error("master@default modbus actor terminated")
			panic(errors.New("modbus actor terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		state.respondHealth(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.currentHealthCheck.modbusHealthy = true
			case domain.ACTOR_ID_CONTROL:
				state.currentHealthCheck.controlHealthy = true
			case domain.ACTOR_ID_SCHEDULER:
				state.currentHealthCheck.schedulerHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttHealthy = true
			}
		}
		if state.currentHealthCheck.checksReceived == 4 {
			state.respondHealth(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) respondHealth(ctx actor.Context) {
	h := state.currentHealthCheck
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: h.modbusHealthy && h.controlHealthy && h.schedulerHealthy && h.mqttHealthy,
	}
	if h.respondTo != nil {
		ctx.Send(h.respondTo, resp)
	}
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	props := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(state.modbusClient, state.collector, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_MODBUS)
}

func (state *MasterOfPuppetsActor) startControlEngineActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for control engine. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewControlEngineActor(&state.config, state.modbusActor, state.props, state.persist, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_CONTROL)
}

func (state *MasterOfPuppetsActor) startSchedulerActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for scheduler. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPollSchedulerActor(&state.config, state.controlEngine, state.root, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_SCHEDULER)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	props := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewMQTTActor(&state.config, state.stream, state.root, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for ha discovery. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.modbusActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_HA_DISCOVERY)
}

// commandFromMQTT turns one adapter-level ParsedCommand (still raw text)
// into a domain.Command. Coercion of the raw payload happens later, inside
// service.ApplyCommand — this only resolves which Command type the MQTT
// topic's entity kind maps onto.
func commandFromMQTT(cmd admqtt.ParsedCommand) (domain.Command, error) {
	switch cmd.Kind {
	case "switch":
		return domain.SetStartStop{Raw: cmd.Payload}, nil
	case "select":
		return domain.SetMode{Raw: cmd.Payload}, nil
	case "number":
		amps, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, fmt.Errorf("set_current payload %q: %w", cmd.Payload, err)
		}
		return domain.SetCurrent{Amps: amps}, nil
	default:
		return nil, fmt.Errorf("unrecognised command kind %q", cmd.Kind)
	}
}
