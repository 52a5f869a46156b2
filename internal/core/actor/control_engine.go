package actor

import (
	"fmt"
	"math"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
	"github.com/evdriver/evdriver/internal/core/propertystore"
	"github.com/evdriver/evdriver/internal/core/service"
	. "github.com/evdriver/evdriver/internal/util/actorutil"
)

// controlEngineTick is sent by the Poll Scheduler actor via RequestFuture;
// the Control Engine answers with controlEngineTickAck once the whole
// snapshot/decide/write/publish cycle for this tick has settled, which is
// what lets the scheduler enforce "never queue a second tick".
type controlEngineTick struct{}
type controlEngineTickAck struct{}

// StatusQueryRequest/Response back the HTTP /api/status handler: the
// current Intent, the tracker's open session (if any), and the last
// write's acknowledgement state, independent of the Property Store's
// per-path change feed.
type StatusQueryRequest struct{}
type StatusQueryResponse struct {
	Intent         domain.Intent
	OpenSession    *domain.Session
	Unacknowledged bool
}

// ForceTick lets the composition root request one last snapshot/decide/
// write/publish cycle during graceful shutdown (spec.md §5's best-effort
// "ramp to minimum, then stop" sequence) without waiting for the Poll
// Scheduler's own timer. Only honoured from Idle: a tick already in
// flight is left to finish on its own.
type ForceTick struct{}

// steadyStatePersistInterval throttles persistence writes while a session
// is open and nothing else changed, per spec.md §4.6's "at most once every
// 10s" note; every intent change or session transition still persists
// immediately regardless of this interval.
const steadyStatePersistInterval = 10 * time.Second

// ControlEngineActor is the poll/decide/actuate loop's home: it drains the
// Command Inbox, dispatches to the mode evaluator selected by Intent.Mode,
// applies the §4.5.4 write-policy hysteresis, advances the Session Tracker,
// and publishes the tick's results to the Property Store. Grounded on the
// teacher's BatteryControlActorNew, generalising its
// Starting->WaitingInfo->Idle->Charging shape to
// Starting->Idle->AwaitingSnapshot->Deciding->AwaitingWrite.
type ControlEngineActor struct {
	ActorWithStates
	stash       *Stash
	modbusActor *actor.PID
	config      *config.Config
	props       *propertystore.Store
	persist     port.PersistencePort
	logger      *zap.Logger

	inbox     *service.Inbox
	tracker   *service.Tracker
	manual    service.ManualMode
	auto      *service.AutoMode
	scheduled service.ScheduledMode

	intent     domain.Intent
	pvSurplusW *float64

	lastWriteAt         time.Time
	lastWrittenCurrentA float64
	lastWrittenEnabled  bool
	haveWritten         bool
	writeAcked          bool

	lastPersistAt   time.Time
	persistedIntent domain.Intent

	tickSender *actor.PID
}

func NewControlEngineActor(cfg *config.Config, modbusActor *actor.PID, props *propertystore.Store, persist port.PersistencePort, logger *zap.Logger) *ControlEngineActor {
	act := &ControlEngineActor{
		stash:       &Stash{},
		modbusActor: modbusActor,
		config:      cfg,
		props:       props,
		persist:     persist,
		logger:      ActorLogger(domain.ACTOR_ID_CONTROL, logger),
		inbox:       service.NewInbox(32),
		tracker:     service.NewTracker(cfg.Persistence.HistoryCap),
		auto:        service.NewAutoMode(),
		intent:      domain.DefaultIntent(),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.auto.DipGrace = time.Duration(cfg.Control.DipGraceSec) * time.Second
	act.auto.PhaseHysteresis = time.Duration(cfg.Control.PhaseHysteresisSec) * time.Second
	act.auto.PhaseSwitchMarginA = cfg.Control.PhaseSwitchMarginA
	act.auto.PhaseStopHold = time.Duration(cfg.Control.PhaseStopHoldSec) * time.Second
	act.Become(CEStartingState{actor: act})
	return act
}

func (a *ControlEngineActor) Receive(ctx actor.Context) {
	a.Behavior.Receive(ctx)
}

func (a *ControlEngineActor) evaluatorFor(mode domain.Mode) port.ModeEvaluator {
	switch mode {
	case domain.ModeAuto:
		return a.auto
	case domain.ModeScheduled:
		return a.scheduled
	default:
		return a.manual
	}
}

// Starting state: restores Intent and the Session Tracker from disk before
// the engine accepts its first tick.
type CEStartingState struct {
	ActorState
	actor *ControlEngineActor
}

func (state CEStartingState) Name() string { return "starting" }

func (state CEStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		saved := state.actor.persist.Load()
		state.actor.intent = saved.Intent
		state.actor.tracker.Restore(saved)
		state.actor.logger.Info("control_engine@starting: restored persisted state",
			zap.String("mode", saved.Intent.Mode.String()),
			zap.Bool("had_open_session", saved.OpenSession != nil))
		state.actor.Become(CEIdleState{actor: state.actor})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state: waits for the next Poll Scheduler tick, accepting inbound
// commands and PV-surplus updates at any time in the meantime.
type CEIdleState struct {
	ActorState
	actor *ControlEngineActor
}

func (state CEIdleState) Name() string { return "idle" }

func (state CEIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_CONTROL, Healthy: true, State: state.Name()})
	case StatusQueryRequest:
		state.actor.respondStatus(ctx)
	case domain.IncomingCommand:
		state.actor.inbox.Push(msg.Command)
	case domain.PVSurplusUpdate:
		v := msg.WattsSigned
		state.actor.pvSurplusW = &v
	case controlEngineTick, ForceTick:
		state.actor.tickSender = ctx.Sender()
		state.actor.Become(CEAwaitingSnapshotState{actor: state.actor}.OnEnterAction(ctx))
	default:
		state.actor.logger.Debug("control_engine@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// AwaitingSnapshot state: has asked the Modbus actor to run one Measurement
// Collector pass and is waiting for the result.
type CEAwaitingSnapshotState struct {
	ActorState
	actor *ControlEngineActor
}

func (state CEAwaitingSnapshotState) Name() string { return "awaitingSnapshot" }

func (state CEAwaitingSnapshotState) OnEnterAction(ctx actor.Context) CEAwaitingSnapshotState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor, domain.GetSnapshotRequest{}, state.actor.config.ModbusTCP.RequestTimeout),
		func(err error) any {
			return domain.GetSnapshotResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	return state
}

func (state CEAwaitingSnapshotState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetSnapshotResponse:
		if msg.HasResponseError() {
			state.actor.logger.Warn("control_engine@awaitingSnapshot: snapshot request failed", zap.Error(msg.GetResponseError()))
			state.actor.Become(CEIdleState{actor: state.actor})
			state.actor.finishTick(ctx)
			return
		}
		deciding := CEDecidingState{actor: state.actor}
		state.actor.Become(deciding)
		deciding.decide(ctx, msg.Snapshot)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_CONTROL, Healthy: true, State: state.Name()})
	case StatusQueryRequest:
		state.actor.respondStatus(ctx)
	case domain.IncomingCommand:
		state.actor.inbox.Push(msg.Command)
	case domain.PVSurplusUpdate:
		v := msg.WattsSigned
		state.actor.pvSurplusW = &v
	default:
		state.actor.logger.Debug("control_engine@awaitingSnapshot: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Deciding state: pure decision-making over the freshly collected
// Snapshot. It never suspends: it drains the inbox, mutates Intent,
// evaluates the active mode, advances the Session Tracker, and publishes
// to the Property Store, then either issues a write or returns to Idle.
type CEDecidingState struct {
	ActorState
	actor *ControlEngineActor
}

func (state CEDecidingState) Name() string { return "deciding" }

func (state CEDecidingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_CONTROL, Healthy: true, State: state.Name()})
	case StatusQueryRequest:
		state.actor.respondStatus(ctx)
	case domain.IncomingCommand:
		state.actor.inbox.Push(msg.Command)
	case domain.PVSurplusUpdate:
		v := msg.WattsSigned
		state.actor.pvSurplusW = &v
	default:
		state.actor.logger.Debug("control_engine@deciding: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state CEDecidingState) decide(ctx actor.Context, snap domain.Snapshot) {
	a := state.actor

	for _, cmd := range a.inbox.Drain() {
		if rej := service.ApplyCommand(&a.intent, cmd); rej != nil {
			a.logger.Warn("control_engine@deciding: command rejected", zap.String("path", cmd.Path()), zap.String("reason", rej.Reason))
		}
	}

	stationMaxA := 0.0
	if snap.StationMaxCurrentA.Ok {
		stationMaxA = float64(snap.StationMaxCurrentA.Value)
	}

	out := a.evaluatorFor(a.intent.Mode).Evaluate(port.ModeInput{
		Snapshot:           snap,
		Intent:             a.intent,
		Now:                snap.TakenAt,
		PVSurplusW:         a.pvSurplusW,
		StationMaxA:        stationMaxA,
		ConfiguredCeilingA: a.config.Control.ConfiguredCeilingA,
		PhasePolicy:        domain.PhaseSwitchPolicy{Supported: a.config.RegisterMap.PhaseSwitchSupported()},
	})

	transitioned := a.tracker.Tick(snap.TakenAt, snap.Status, snap.LifetimeEnergyKWh, snap.AggregatePowerW, nil)

	// Persist before publish: Intent/session mutations above must be
	// durable before any subscriber (SSE/MQTT) can observe them, so a
	// crash before the next successful persist never leaves a subscriber
	// having seen a value a restart would roll back.
	if transitioned || intentChanged(a.intent, a.persistedIntent) {
		a.persistNow(snap.TakenAt)
	} else if session := a.tracker.OpenSession(); session != nil && snap.TakenAt.Sub(a.lastPersistAt) >= steadyStatePersistInterval {
		a.persistNow(snap.TakenAt)
	}

	a.publish(snap, out)

	if a.shouldWrite(out) {
		a.Become(CEAwaitingWriteState{actor: a}.OnEnterAction(ctx, out))
		return
	}
	a.Become(CEIdleState{actor: a})
	a.finishTick(ctx)
}

// intentChanged compares the fields a command can mutate at runtime.
// Schedule/Timezone are not changed by any command, so they are excluded
// here rather than requiring domain.Intent (which embeds a slice) to
// support equality comparison. They come only from the persisted document:
// config.Config's Schedule and Control.DefaultTimezone are validated at
// startup but not copied into the Intent.
func intentChanged(a, b domain.Intent) bool {
	return a.Mode != b.Mode || a.StartStop != b.StartStop || a.SetCurrentA != b.SetCurrentA
}

// AwaitingWrite state: has issued a WriteCommandRequest to the Modbus
// actor and is waiting for the acknowledgement.
type CEAwaitingWriteState struct {
	ActorState
	actor  *ControlEngineActor
	output port.ModeOutput
}

func (state CEAwaitingWriteState) Name() string { return "awaitingWrite" }

func (state CEAwaitingWriteState) OnEnterAction(ctx actor.Context, out port.ModeOutput) CEAwaitingWriteState {
	state.output = out
	cmd := domain.EffectiveCommand{
		TargetCurrentA: math.Round(out.TargetCurrentA*10) / 10,
		Enabled:        out.Enabled,
		PhaseCommand:   out.PhaseCommand,
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor, domain.WriteCommandRequest{Command: cmd}, state.actor.config.ModbusTCP.RequestTimeout),
		func(err error) any {
			return domain.WriteCommandResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		})
	return state
}

func (state CEAwaitingWriteState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.WriteCommandResponse:
		a := state.actor
		if msg.HasResponseError() || !msg.Acknowledged {
			a.logger.Warn("control_engine@awaitingWrite: write failed, marking unacknowledged", zap.Error(msg.GetResponseError()))
			a.writeAcked = false
		} else {
			a.writeAcked = true
			a.lastWriteAt = time.Now()
			a.lastWrittenCurrentA = math.Round(state.output.TargetCurrentA*10) / 10
			a.lastWrittenEnabled = state.output.Enabled
			a.haveWritten = true
		}
		a.props.Publish("/Unacknowledged", !a.writeAcked)
		a.Become(CEIdleState{actor: a})
		a.finishTick(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_CONTROL, Healthy: true, State: state.Name()})
	case StatusQueryRequest:
		state.actor.respondStatus(ctx)
	case domain.IncomingCommand:
		state.actor.inbox.Push(msg.Command)
	case domain.PVSurplusUpdate:
		v := msg.WattsSigned
		state.actor.pvSurplusW = &v
	default:
		state.actor.logger.Debug("control_engine@awaitingWrite: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// shouldWrite implements the §4.5.4 write policy: only on an integer-amp
// change, a start/stop change, a requested phase switch, or a 30s heartbeat.
func (a *ControlEngineActor) shouldWrite(out port.ModeOutput) bool {
	if !a.haveWritten {
		return true
	}
	if out.PhaseCommand != nil {
		return true
	}
	if int(math.Round(out.TargetCurrentA)) != int(math.Round(a.lastWrittenCurrentA)) {
		return true
	}
	if out.Enabled != a.lastWrittenEnabled {
		return true
	}
	heartbeat := time.Duration(a.config.Control.HeartbeatSec) * time.Second
	return time.Since(a.lastWriteAt) >= heartbeat
}

func (a *ControlEngineActor) publish(snap domain.Snapshot, out port.ModeOutput) {
	a.props.Publish("/Mode", a.intent.Mode.String())
	a.props.Publish("/StartStop", a.intent.StartStop)
	a.props.Publish("/SetCurrent", a.intent.SetCurrentA)
	a.props.Publish("/Current", out.TargetCurrentA)
	a.props.Publish("/Status", domain.LogicalStatus(snap.Status, a.intent.Mode, out.Enabled))
	a.props.Publish("/Ac/PhaseCount", snap.ActivePhases)
	a.props.Publish("/Ac/Energy/Forward", snap.LifetimeEnergyKWh.Value)

	if snap.AggregatePowerW.Ok {
		a.props.Publish("/Ac/Power", float64(snap.AggregatePowerW.Value))
	}

	publishPhase := func(prefix string, triplet domain.PhaseTriplet) {
		for label, v := range map[string]domain.F32{"L1": triplet.L1, "L2": triplet.L2, "L3": triplet.L3} {
			if v.Ok {
				a.props.Publish("/Ac/"+label+"/"+prefix, float64(v.Value))
			}
		}
	}
	publishPhase("Voltage", snap.Voltage)
	publishPhase("Current", snap.Current)
	publishPhase("Power", snap.Power)

	if snap.IdentityCached {
		a.props.Publish("/ProductName", snap.ProductName)
		a.props.Publish("/Serial", snap.Serial)
		a.props.Publish("/FirmwareVersion", snap.FirmwareVersion)
	}

	if session := a.tracker.OpenSession(); session != nil {
		a.props.Publish("/ChargingTime", session.ChargingTimeSec)
	}
}

func (a *ControlEngineActor) persistNow(now time.Time) {
	state := a.tracker.SnapshotForPersistence(a.intent)
	if err := a.persist.Save(state); err != nil {
		a.logger.Error("control_engine: persistence write failed", zap.Error(err))
		return
	}
	a.persistedIntent = a.intent
	a.lastPersistAt = now
}

func (a *ControlEngineActor) respondStatus(ctx actor.Context) {
	ctx.Respond(StatusQueryResponse{
		Intent:         a.intent,
		OpenSession:    a.tracker.OpenSession(),
		Unacknowledged: a.haveWritten && !a.writeAcked,
	})
}

func (a *ControlEngineActor) finishTick(ctx actor.Context) {
	if a.tickSender != nil {
		ctx.Send(a.tickSender, controlEngineTickAck{})
		a.tickSender = nil
	}
	a.stash.UnstashAll(ctx)
}
