package actor

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
	"github.com/evdriver/evdriver/internal/core/service"
	"github.com/evdriver/evdriver/internal/util/actorutil"
	"github.com/evdriver/evdriver/pkg/evmodbus"
)

// ModbusActor owns the single TCP connection to the charging station and
// is the only component that touches it: the Control Engine never reaches
// into the socket, it only exchanges GetSnapshotRequest/WriteCommandRequest
// with this actor. Grounded on the teacher's ModbusActor, generalised from
// the SunSpec inverter/AC-meter pair to one evmodbus.Client multiplexing
// the socket and station logical unit-ids.
type ModbusActor struct {
	behavior  actor.Behavior
	stash     *Stash
	client    *evmodbus.Client
	collector *service.Collector
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(client *evmodbus.Client, collector *service.Collector, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		client:    client,
		collector: collector,
		behavior:  actor.NewBehavior(),
		stash:     &Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.client.Connect(); err != nil {
			state.logger.Warn("modbus@starting: initial connect failed, will retry on first poll", zap.Error(err))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.client.Disconnect()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: state.client.State() == evmodbus.Connected,
			State:   state.client.State().String(),
		})
	case domain.GetSnapshotRequest:
		state.logger.Debug("modbus@default: GetSnapshotRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, state.getSnapshot),
			mapTaskResult[domain.GetSnapshotResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetSnapshotResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.WriteCommandRequest:
		state.logger.Debug("modbus@default: WriteCommandRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.WriteCommandResponse {
			r := state.writeCommand(msg.Command)
			return &r
		}), mapTaskResult[domain.WriteCommandResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WriteCommandResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.client.Disconnect()
	default:
		state.logger.Debug("modbus@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@waitingModbus: backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.client.Disconnect()
	default:
		state.logger.Debug("modbus@waitingModbus: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// getSnapshot runs the Measurement Collector's read plan against the
// live connection, reconnecting first if the previous tick dropped it.
func (state *ModbusActor) getSnapshot() *domain.GetSnapshotResponse {
	if state.client.State() != evmodbus.Connected {
		if err := state.client.Connect(); err != nil {
			state.logger.Warn("modbus: reconnect failed, collecting with whatever responds", zap.Error(err))
		}
	}
	snap := state.collector.Collect(port.ModbusPort(state.client))
	return &domain.GetSnapshotResponse{Snapshot: snap}
}

// writeCommand pushes one EffectiveCommand back to the station: target
// current, enable flag, and an optional phase-switch command. A write
// failure is reported, never panicked on: the Control Engine marks the
// Property Store "unacknowledged" and retries on the next tick.
func (state *ModbusActor) writeCommand(cmd domain.EffectiveCommand) domain.WriteCommandResponse {
	regs := state.collector.Registers()
	order := state.collector.WordOrder()

	if err := state.client.WriteMultiple(state.collector.SocketUnit(), regs.TargetCurrentAddr, evmodbus.EncodeF32(float32(cmd.TargetCurrentA), order)); err != nil {
		return domain.WriteCommandResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	}

	enableWord := uint16(0)
	if cmd.Enabled {
		enableWord = 1
	}
	if err := state.client.WriteMultiple(state.collector.SocketUnit(), regs.EnableAddr, []uint16{enableWord}); err != nil {
		return domain.WriteCommandResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	}

	if cmd.PhaseCommand != nil && regs.PhaseSwitchSupported() {
		if err := state.client.WriteMultiple(state.collector.SocketUnit(), regs.PhaseCommandAddr, []uint16{uint16(*cmd.PhaseCommand)}); err != nil {
			return domain.WriteCommandResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		}
	}

	return domain.WriteCommandResponse{Acknowledged: true}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
