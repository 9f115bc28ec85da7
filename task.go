package reactor

import "time"

// taskContext carries the timer/IO metadata populated by the timer
// service or the I/O watcher before they invoke the task factory. It is
// nil for emissions arriving through the ordinary bus path.
type taskContext struct {
	timerTick *TimerTickInfo
	ioEvent   *IOEventInfo
}

// Task is one scheduled invocation of a reaction: a resolved argument
// tuple, an assembly timestamp, and a unique, strictly increasing task id.
// Tasks are single-use.
type Task struct {
	reaction  *Reaction
	args      Args
	createdAt time.Time
	id        uint64
}

// resolveTask implements the task factory algorithm of the component
// design: it resolves a reaction's declared inputs into an argument
// tuple, or silently rejects the prospective task. ok is false whenever
// the reaction should simply not run for this emission; that is never an
// error.
func resolveTask(
	r *Reaction,
	b *bus,
	triggerType TypeKey,
	triggerPayload any,
	hasTrigger bool,
	ctx *taskContext,
	now time.Time,
	nextID func() uint64,
) (*Task, bool) {
	if !r.Enabled() {
		return nil, false
	}
	if r.single && (r.active.Load() >= 1 || r.pending.Load() >= 1) {
		return nil, false
	}

	args := make(Args, len(r.inputs))
	for i, in := range r.inputs {
		switch in.kind {
		case inputTrigger:
			if !hasTrigger || in.typeKey != triggerType {
				return nil, false
			}
			args[i] = triggerPayload

		case inputWith:
			v, ok := b.snapshot(in.typeKey)
			if !ok {
				if !b.isTransient(in.typeKey) {
					return nil, false
				}
				args[i] = nil
				continue
			}
			args[i] = v

		case inputLast:
			h := r.historyFor(in.typeKey, in.n)
			if hasTrigger && in.typeKey == triggerType {
				h.push(triggerPayload)
			}
			args[i] = h.snapshot()

		case inputTimerTick:
			if ctx == nil || ctx.timerTick == nil {
				return nil, false
			}
			args[i] = *ctx.timerTick

		case inputIOEvent:
			if ctx == nil || ctx.ioEvent == nil {
				return nil, false
			}
			args[i] = *ctx.ioEvent

		default:
			return nil, false
		}
	}

	r.pending.Add(1)
	return &Task{
		reaction:  r,
		args:      args,
		createdAt: now,
		id:        nextID(),
	}, true
}
