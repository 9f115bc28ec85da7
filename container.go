package reactor

import (
	"sync/atomic"
	"time"
)

// Reactor assembles a bundle of related reactions against a
// [ReactorContext] at install time. It is the unit a caller bundles
// related behaviour into and hands to [Runtime.Install].
type Reactor interface {
	Install(ctx *ReactorContext)
}

// ReactorFunc adapts a plain function to the [Reactor] interface.
type ReactorFunc func(ctx *ReactorContext)

// Install calls f.
func (f ReactorFunc) Install(ctx *ReactorContext) { f(ctx) }

// ReactorContext is the handle a [Reactor] uses to declare reactions and
// emit payloads during installation, and that any of its reactions'
// callbacks may continue to use afterward via closure capture.
type ReactorContext struct {
	rt        *Runtime
	reactorID uint64
	handles   []Handle
}

// On begins declaring a reaction over the given input descriptors. Chain
// [reactionBuilder] methods, then call Do to register the callback and
// obtain its [Handle].
func (c *ReactorContext) On(inputs ...InputDescriptor) *reactionBuilder {
	return &reactionBuilder{ctx: c, inputs: inputs}
}

// Emit publishes payload under scope, exactly as [Runtime.Emit] would.
func (c *ReactorContext) Emit(payload any, scope Scope) {
	c.rt.Emit(payload, scope)
}

// Clock returns the runtime's time source.
func (c *ReactorContext) Clock() Clock {
	return c.rt.clock
}

// reactionBuilder accumulates a reaction's declaration before Do
// registers it.
type reactionBuilder struct {
	ctx    *ReactorContext
	inputs []InputDescriptor
	opts   []ReactionOption

	callback func(Args)
	period   time.Duration
	hasIO    bool
	ioFD     int
	ioMask   IOEvents
}

// Priority sets the reaction's priority class or numeric override.
func (b *reactionBuilder) Priority(p Priority) *reactionBuilder {
	b.opts = append(b.opts, WithPriority(p))
	return b
}

// Sync attaches a mutex-group key.
func (b *reactionBuilder) Sync(group string) *reactionBuilder {
	b.opts = append(b.opts, Sync(group))
	return b
}

// Single marks the reaction single-flight.
func (b *reactionBuilder) Single() *reactionBuilder {
	b.opts = append(b.opts, Single())
	return b
}

// MainThread restricts dispatch to the pinned main worker.
func (b *reactionBuilder) MainThread() *reactionBuilder {
	b.opts = append(b.opts, MainThread())
	return b
}

// Period sets the firing cadence for a reaction declared over
// [TimerTick]. Required for such a reaction to ever fire.
func (b *reactionBuilder) Period(d time.Duration) *reactionBuilder {
	b.period = d
	return b
}

// IO binds a reaction declared over [IOEvent] to fd, watched for the
// given readiness mask. Required for such a reaction to ever fire.
func (b *reactionBuilder) IO(fd int, mask IOEvents) *reactionBuilder {
	b.hasIO = true
	b.ioFD = fd
	b.ioMask = mask
	return b
}

// Do registers callback as the reaction's body and returns a [Handle]
// for enabling, disabling, or unbinding it.
func (b *reactionBuilder) Do(callback func(Args)) Handle {
	b.callback = callback
	return b.ctx.rt.register(b.ctx, b)
}

var reactorIDCounter atomic.Uint64

func nextReactorID() uint64 {
	return reactorIDCounter.Add(1)
}
