package actor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	. "github.com/evdriver/evdriver/internal/util/actorutil"
)

// PollSchedulerActor drives the fixed-period poll loop with a go-quartz
// SimpleTrigger instead of protoactor's own TimerScheduler, so a firing
// runs on quartz's worker goroutine and reaches the actor tree only
// through a message. It enforces "never queue a second tick" itself: a
// firing that finds the previous tick's ack still outstanding just bumps
// the overrun counter and returns, grounded on spec.md §4.3's
// drop-if-still-running policy.
type PollSchedulerActor struct {
	ActorWithStates
	controlEngine *actor.PID
	interval      time.Duration
	root          *actor.RootContext
	logger        *zap.Logger

	sched quartz.Scheduler

	busy    atomic.Bool
	overrun atomic.Uint64
}

func NewPollSchedulerActor(cfg *config.Config, controlEngine *actor.PID, root *actor.RootContext, logger *zap.Logger) *PollSchedulerActor {
	act := &PollSchedulerActor{
		controlEngine: controlEngine,
		interval:      time.Duration(cfg.Poll.IntervalMillis) * time.Millisecond,
		root:          root,
		logger:        ActorLogger(domain.ACTOR_ID_SCHEDULER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PSRunningState{actor: act})
	return act
}

func (a *PollSchedulerActor) Receive(ctx actor.Context) {
	a.Behavior.Receive(ctx)
}

// OverrunCount reports how many firings were dropped because the
// previous tick had not yet acked, exposed for a health/status endpoint.
func (a *PollSchedulerActor) OverrunCount() uint64 {
	return a.overrun.Load()
}

type PSRunningState struct {
	ActorState
	actor *PollSchedulerActor
}

func (state PSRunningState) Name() string { return "running" }

func (state PSRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a := state.actor
		a.sched = quartz.NewStdScheduler()
		a.sched.Start(context.Background())

		pollJob := job.NewFunctionJob(func(_ context.Context) (int, error) {
			a.fire()
			return 0, nil
		})
		trigger := quartz.NewSimpleTrigger(a.interval)
		if err := a.sched.ScheduleJob(quartz.NewJobDetail(pollJob, quartz.NewJobKey("poll")), trigger); err != nil {
			a.logger.Error("scheduler@running: failed to schedule poll job", zap.Error(err))
			return
		}
		a.logger.Info("scheduler@running: started", zap.Duration("interval", a.interval))
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_SCHEDULER, Healthy: true, State: state.Name()})
	case *actor.Stopping:
		if state.actor.sched != nil {
			state.actor.sched.Stop()
		}
	default:
		state.actor.logger.Debug("scheduler@running: unhandled", zap.Any("message", msg))
	}
}

// fire runs on go-quartz's own worker goroutine, never inside the
// actor's mailbox, so it must touch only atomics and send messages, not
// actor state directly.
func (a *PollSchedulerActor) fire() {
	if !a.busy.CompareAndSwap(false, true) {
		n := a.overrun.Add(1)
		a.logger.Warn("scheduler: previous tick still running, dropped firing", zap.Uint64("overrun_count", n))
		return
	}
	defer a.busy.Store(false)

	future := a.root.RequestFuture(a.controlEngine, controlEngineTick{}, a.interval*4)
	if _, err := future.Result(); err != nil {
		a.logger.Warn("scheduler: tick did not ack before deadline", zap.Error(err))
	}
}
