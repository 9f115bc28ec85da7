package reactor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-microbatch"
	"github.com/joeycumines/logiface"
)

// reactionExceptionRates bounds how often ReactionExceptionEvent floods
// the bus: at most 50 in any one-second window, 500 in any one-minute
// window, so a reaction panicking in a tight loop cannot itself starve
// the scheduler with diagnostic traffic.
var reactionExceptionRates = map[time.Duration]int{
	time.Second: 50,
	time.Minute: 500,
}

// networkBatchConfig governs how ScopeNetwork emissions are grouped
// before reaching the configured NetworkReactor.
var networkBatchConfig = &microbatch.BatcherConfig{
	MaxSize:        64,
	FlushInterval:  10 * time.Millisecond,
	MaxConcurrency: 4,
}

// Runtime is the concurrent host for installed reactors: it owns the
// message bus, the scheduler and its worker pool, the timer service, the
// I/O watcher, and the network emission pipeline.
type Runtime struct {
	clock  Clock
	logger *logiface.Logger[*Event]

	bus       *bus
	scheduler *scheduler
	timer     *timerService
	watcher   *IOWatcher

	network          NetworkReactor
	networkBatcher   *microbatch.Batcher[any]
	exceptionLimiter *catrate.Limiter

	state *fastState

	threadCount int

	taskIDCounter     atomic.Uint64
	reactionIDCounter atomic.Uint64

	mu          sync.Mutex
	reactors    []*ReactorContext
	allHandles  []Handle
	runDone     chan struct{}
	ioWatcherWG sync.WaitGroup
}

// New constructs a Runtime. It does not start workers; call Start for
// that.
func New(opts ...RuntimeOption) (*Runtime, error) {
	cfg, err := resolveRuntimeOptions(opts)
	if err != nil {
		return nil, err
	}

	logger := resolveLogger(cfg.logger)

	rt := &Runtime{
		clock:            cfg.clock,
		logger:           logger,
		bus:              newBus(),
		network:          cfg.network,
		exceptionLimiter: catrate.NewLimiter(reactionExceptionRates),
		state:            newFastState(),
		threadCount:      cfg.threadCount,
		runDone:          make(chan struct{}),
	}

	rt.scheduler = newScheduler(logger)
	rt.scheduler.exec = rt.invoke

	rt.timer = newTimerService(rt.clock, rt.bus, rt.scheduler.submit, rt.nextTaskID, logger)

	watcher, err := newIOWatcher(rt.clock, rt.bus, rt.scheduler.submit, rt.nextTaskID, logger)
	if err != nil {
		return nil, WrapError("construct runtime", err)
	}
	rt.watcher = watcher

	rt.networkBatcher = microbatch.NewBatcher[any](networkBatchConfig, func(ctx context.Context, jobs []any) error {
		return rt.network.Send(ctx, jobs)
	})

	return rt, nil
}

func (rt *Runtime) nextTaskID() uint64 {
	return rt.taskIDCounter.Add(1)
}

// Install adds a reactor's reactions to the runtime. Safe to call both
// before and after Start; reactions installed after Start are live as
// soon as Install returns.
func (rt *Runtime) Install(r Reactor) error {
	if rt.state.IsTerminal() {
		return &ConfigurationError{Message: "runtime already terminated"}
	}

	ctx := &ReactorContext{rt: rt, reactorID: nextReactorID()}
	r.Install(ctx)

	rt.mu.Lock()
	rt.reactors = append(rt.reactors, ctx)
	rt.allHandles = append(rt.allHandles, ctx.handles...)
	rt.mu.Unlock()

	rt.logger.Info().Str("category", catReactor).Uint64("reactor_id", ctx.reactorID).Int("reaction_count", len(ctx.handles)).Log("reactor installed")
	return nil
}

// register is the shared implementation behind [reactionBuilder.Do]: it
// builds a Reaction, subscribes it to the bus under its trigger type (if
// any), or registers it with the timer service / I/O watcher for
// TimerTick / IOEvent inputs.
func (rt *Runtime) register(ctx *ReactorContext, b *reactionBuilder) Handle {
	resolved := resolveReactionOptions(b.opts)
	r := newReaction(rt.reactionIDCounter.Add(1), ctx.reactorID, b.inputs, b.callback, resolved)

	var hasTimer, hasIO bool
	for _, in := range b.inputs {
		switch in.kind {
		case inputTimerTick:
			hasTimer = true
		case inputIOEvent:
			hasIO = true
		}
	}

	if r.hasTrigger {
		unsub := rt.bus.subscribe(r.triggerType, r)
		r.addUnbind(unsub)
		rt.logger.Debug().Str("category", catBus).Uint64("reaction_id", r.id).Str("type", r.triggerType.String()).Log("subscribed")
	}
	if hasTimer && b.period > 0 {
		rt.Emit(TimerConfigure{Period: b.period, Reaction: r}, ScopeDirect)
		r.addUnbind(func() { rt.timer.unbindReaction(r.id) })
	}
	if hasIO && b.hasIO {
		// IO reactions are always single-flight: a level-triggered fd keeps
		// reporting readiness until the callback consumes it.
		r.single = true
		rt.Emit(IOConfigure{FD: b.ioFD, Mask: b.ioMask, Reaction: r}, ScopeDirect)
		r.addUnbind(func() { rt.watcher.unbindReaction(r.id) })
	}

	h := Handle{reaction: r}
	ctx.handles = append(ctx.handles, h)
	return h
}

// Start launches the worker pool, the timer service, and the I/O
// watcher. It publishes no payload of its own.
func (rt *Runtime) Start(ctx context.Context) error {
	if !rt.state.TryTransition(StateAwake, StateRunning) {
		return &ConfigurationError{Message: "runtime already started"}
	}

	rt.scheduler.start(rt.threadCount)
	go rt.timer.run()

	rt.ioWatcherWG.Add(1)
	go func() {
		defer rt.ioWatcherWG.Done()
		rt.watcher.run(ctx)
	}()

	rt.logger.Info().Int("worker_count", rt.threadCount).Log("runtime started")
	return nil
}

// Shutdown publishes ShutdownEvent, drains queued work (including any
// tasks ShutdownEvent triggered), then stops the worker pool, timer
// service, and I/O watcher. It blocks until drain
// completes or ctx is done.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if !rt.state.TryTransition(StateRunning, StateTerminating) {
		if rt.state.TryTransition(StateAwake, StateTerminated) {
			_ = rt.watcher.Close()
			_ = rt.networkBatcher.Close()
			close(rt.runDone)
			return nil
		}
		if rt.state.IsTerminal() {
			return nil
		}
	}

	rt.Emit(ShutdownEvent{}, ScopeLocal)

	done := make(chan struct{})
	go func() {
		rt.scheduler.drain()
		rt.scheduler.wait()
		rt.timer.stop()
		_ = rt.watcher.Close()
		_ = rt.networkBatcher.Shutdown(ctx)
		rt.ioWatcherWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		rt.state.TryTransition(StateTerminating, StateTerminated)
		close(rt.runDone)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that closes once Shutdown has fully completed.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.runDone
}

// Handles returns every Handle issued across every installed reactor, in
// installation order.
func (rt *Runtime) Handles() []Handle {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]Handle, len(rt.allHandles))
	copy(out, rt.allHandles)
	return out
}

// ReactorCount returns the number of reactors installed so far.
func (rt *Runtime) ReactorCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.reactors)
}
