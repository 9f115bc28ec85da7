package reactor

import (
	"context"
	"reflect"
	"runtime/debug"
	"sync"
	"time"
)

// ReactionExceptionEvent is published with [ScopeLocal] whenever a
// reaction's callback panics. Diagnostic reactions may subscribe to it
// like any other type.
type ReactionExceptionEvent struct {
	ReactionID uint64
	Err        error
}

// ShutdownEvent is published with [ScopeLocal] once, before workers stop,
// giving cleanup reactions a chance to run during drain.
type ShutdownEvent struct{}

// TimerConfigure is the internal, Direct-scope control message that
// registers a periodic reaction with the timer service.
type TimerConfigure struct {
	Period   time.Duration
	Reaction *Reaction
}

// UnbindTimer is the internal, Direct-scope control message that
// deregisters a reaction from the timer service.
type UnbindTimer struct {
	ReactionID uint64
}

// IOConfigure is the internal, Direct-scope control message that
// registers a reaction with the I/O watcher for a file descriptor and
// readiness mask.
type IOConfigure struct {
	FD       int
	Mask     IOEvents
	Reaction *Reaction
}

// UnbindIO is the internal, Direct-scope control message that
// deregisters a reaction from the I/O watcher.
type UnbindIO struct {
	ReactionID uint64
}

// NetworkReactor is the external collaborator that receives ScopeNetwork
// emissions for serialisation and outbound transmission. Wire format and
// transport are outside this package's scope; NetworkReactor is the
// boundary.
type NetworkReactor interface {
	Send(ctx context.Context, payloads []any) error
}

// LoopbackNetworkReactor is a trivial in-process NetworkReactor: it
// records batches instead of transmitting them, for use in tests that
// exercise ScopeNetwork without a real transport.
type LoopbackNetworkReactor struct {
	mu      sync.Mutex
	batches [][]any
}

// Send records payloads as a batch.
func (n *LoopbackNetworkReactor) Send(_ context.Context, payloads []any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	batch := make([]any, len(payloads))
	copy(batch, payloads)
	n.batches = append(n.batches, batch)
	return nil
}

// Batches returns every batch recorded so far.
func (n *LoopbackNetworkReactor) Batches() [][]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([][]any, len(n.batches))
	copy(out, n.batches)
	return out
}

// DeclareTransient marks T's absence in the cache as an acceptable
// With(T) input: reactions depending on it receive nil instead of being
// rejected. Per the runtime's resolution of the transience open question,
// transience is a first-class, per-type-key flag set at declaration time.
func DeclareTransient[T any](rt *Runtime) {
	rt.bus.setTransient(typeKeyOf[T](), true)
}

// DeclareNonCacheable opts T out of the last-value cache: ScopeLocal
// emissions of T still dispatch subscribers, but never populate a
// snapshot for With(T) to observe.
func DeclareNonCacheable[T any](rt *Runtime) {
	rt.bus.setCacheable(typeKeyOf[T](), false)
}

// Emit publishes payload under scope. No error ever escapes Emit: a
// reaction callback panic is captured and routed to a
// ReactionExceptionEvent instead.
func (rt *Runtime) Emit(payload any, scope Scope) {
	switch p := payload.(type) {
	case TimerConfigure:
		rt.timer.configure(p.Reaction, p.Period)
		return
	case UnbindTimer:
		rt.timer.unbindReaction(p.ReactionID)
		return
	case IOConfigure:
		rt.watcher.configure(p.FD, p.Mask, p.Reaction)
		return
	case UnbindIO:
		rt.watcher.unbindReaction(p.ReactionID)
		return
	}

	key := reflect.TypeOf(payload)
	if key == nil {
		return
	}

	switch scope {
	case ScopeInitialise:
		rt.bus.publish(key, payload, true)

	case ScopeDirect:
		subs := rt.bus.publish(key, payload, false)
		now := rt.clock.Now()
		for _, r := range subs {
			if t, ok := resolveTask(r, rt.bus, key, payload, true, nil, now, rt.nextTaskID); ok {
				rt.invoke(t)
			}
		}

	case ScopeNetwork:
		rt.publishNetwork(payload)

	default: // ScopeLocal
		subs := rt.bus.publish(key, payload, true)
		now := rt.clock.Now()
		for _, r := range subs {
			if t, ok := resolveTask(r, rt.bus, key, payload, true, nil, now, rt.nextTaskID); ok {
				rt.scheduler.submit(t)
			}
		}
	}
}

// publishNetwork hands payload to the network batcher; fire-and-forget,
// matching the non-goal that publishers never block.
func (rt *Runtime) publishNetwork(payload any) {
	_, _ = rt.networkBatcher.Submit(context.Background(), payload)
}

// invoke runs a task's callback, recovering any panic and routing it to a
// ReactionExceptionEvent. It is shared by the scheduler (for ScopeLocal
// tasks, via runTask) and the Direct-scope fast path, and owns the
// pending→active single-flight bookkeeping for both: resolveTask always
// increments pending, so whichever path actually runs the callback must
// be the one that transitions it to active and back.
func (rt *Runtime) invoke(t *Task) {
	r := t.reaction
	r.active.Add(1)
	r.pending.Add(-1)
	defer r.active.Add(-1)

	defer func() {
		if rec := recover(); rec != nil {
			rt.handleReactionPanic(r, rec)
		}
	}()
	r.callback(t.args)
}

func (rt *Runtime) handleReactionPanic(r *Reaction, rec any) {
	err := &PanicError{Value: rec, ReactionID: r.id, Stack: debug.Stack()}
	rt.logger.Err().Str("category", catReactor).Uint64("reaction_id", r.id).Err(err).Log("reaction panicked")

	if _, allow := rt.exceptionLimiter.Allow(r.id); !allow {
		return
	}
	rt.Emit(ReactionExceptionEvent{ReactionID: r.id, Err: err}, ScopeLocal)
}
