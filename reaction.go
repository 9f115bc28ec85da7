package reactor

import (
	"sync"
	"sync/atomic"
)

// historyRing is the bounded history buffer backing a Last(N,T) input. It
// drops the oldest value on overflow and snapshots in newest-last order.
type historyRing struct {
	values []any
	cap    int
}

func newHistoryRing(n int) *historyRing {
	if n < 0 {
		n = 0
	}
	return &historyRing{cap: n}
}

func (h *historyRing) push(v any) {
	if h.cap == 0 {
		return
	}
	h.values = append(h.values, v)
	if len(h.values) > h.cap {
		h.values = h.values[len(h.values)-h.cap:]
	}
}

func (h *historyRing) snapshot() []any {
	out := make([]any, len(h.values))
	copy(out, h.values)
	return out
}

// Reaction is the immutable-after-creation declaration of one callback
// bound to a set of input descriptors, plus its mutable run-state: the
// enabled flag, the (pending, active) counters, per-type history buffers,
// and the unbinders run on detach.
type Reaction struct {
	id         uint64
	reactorID  uint64
	priority   Priority
	syncGroup  string
	single     bool
	mainThread bool
	inputs     []InputDescriptor
	callback   func(Args)

	// triggerType is the type key this reaction is subscribed to on the
	// bus: the type of its Trigger or Last descriptor. A reaction driven
	// purely by TimerTick/IOEvent has no triggerType.
	triggerType TypeKey
	hasTrigger  bool

	enabled atomic.Bool
	pending atomic.Int64
	active  atomic.Int64

	historyMu sync.Mutex
	history   map[TypeKey]*historyRing

	unbindMu sync.Mutex
	unbound  bool
	unbinds  []func()
}

func newReaction(id, reactorID uint64, inputs []InputDescriptor, callback func(Args), opts *reactionOptions) *Reaction {
	r := &Reaction{
		id:         id,
		reactorID:  reactorID,
		priority:   opts.priority,
		syncGroup:  opts.syncGroup,
		single:     opts.single,
		mainThread: opts.mainThread,
		inputs:     inputs,
		callback:   callback,
		history:    make(map[TypeKey]*historyRing),
	}
	r.enabled.Store(true)
	for _, in := range inputs {
		if in.kind == inputTrigger || in.kind == inputLast {
			r.triggerType = in.typeKey
			r.hasTrigger = true
			break
		}
	}
	return r
}

// Enabled reports whether the reaction currently accepts new tasks.
func (r *Reaction) Enabled() bool {
	return r.enabled.Load()
}

func (r *Reaction) historyFor(key TypeKey, n int) *historyRing {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	h, ok := r.history[key]
	if !ok {
		h = newHistoryRing(n)
		r.history[key] = h
	}
	return h
}

func (r *Reaction) addUnbind(f func()) {
	r.unbindMu.Lock()
	defer r.unbindMu.Unlock()
	if r.unbound {
		f()
		return
	}
	r.unbinds = append(r.unbinds, f)
}

// unbind runs every registered unbinder exactly once. Idempotent.
func (r *Reaction) unbind() {
	r.unbindMu.Lock()
	if r.unbound {
		r.unbindMu.Unlock()
		return
	}
	r.unbound = true
	fns := r.unbinds
	r.unbinds = nil
	r.unbindMu.Unlock()

	r.enabled.Store(false)
	for _, f := range fns {
		f()
	}
}

// Handle is an external, weak reference to a declared reaction, supporting
// enable/disable/unbind. After Unbind, the handle is inert: Enable and
// Disable become no-ops.
type Handle struct {
	reaction *Reaction
}

// Enable allows the reaction to accept new tasks again.
func (h Handle) Enable() {
	r := h.reaction
	r.unbindMu.Lock()
	defer r.unbindMu.Unlock()
	if !r.unbound {
		r.enabled.Store(true)
	}
}

// Disable prevents new tasks from being accepted; in-flight tasks still
// complete.
func (h Handle) Disable() {
	h.reaction.enabled.Store(false)
}

// Unbind runs the reaction's stored unbinders (cancelling timers, dropping
// fd watches, removing bus subscriptions) and permanently disables it.
// Safe to call more than once.
func (h Handle) Unbind() {
	h.reaction.unbind()
}
