package reactor

import (
	"reflect"
	"time"
)

// TypeKey identifies a payload type. It is stable for the lifetime of the
// process; two payloads of the same static Go type always produce the same
// key. Obtained via [typeKeyOf] at registration time, per the runtime's
// runtime-type-token strategy for type-keyed dispatch.
type TypeKey = reflect.Type

func typeKeyOf[T any]() TypeKey {
	return reflect.TypeFor[T]()
}

// Args is the resolved argument tuple handed to a reaction's callback, in
// the same order as the input descriptors the reaction declared. Use
// [ValueAt] to recover a typed value from a slot.
type Args []any

// ValueAt type-asserts the value at index i of args to T. If the slot holds
// nil (a transient With(T) whose cache was empty) or a value of a
// different type, it returns the zero value of T.
func ValueAt[T any](args Args, i int) T {
	if i < 0 || i >= len(args) {
		var zero T
		return zero
	}
	v, _ := args[i].(T)
	return v
}

// inputKind discriminates the tagged-variant sum of input descriptors.
type inputKind int

const (
	inputTrigger inputKind = iota
	inputWith
	inputLast
	inputTimerTick
	inputIOEvent
)

// InputDescriptor is one declared dependency of a reaction: the primary
// trigger, a cached secondary value, a bounded history window, or metadata
// from the timer/I/O services. Descriptors are plain data assembled by the
// [Trigger], [With], [Last], [TimerTick], and [IOEvent] builders, rather
// than resolved through compile-time template machinery.
type InputDescriptor struct {
	kind    inputKind
	typeKey TypeKey
	n       int
}

// Trigger declares the primary input: the emission that fires the reaction
// supplies its payload to this slot.
func Trigger[T any]() InputDescriptor {
	return InputDescriptor{kind: inputTrigger, typeKey: typeKeyOf[T]()}
}

// With declares a secondary input resolved from the bus's last-value cache.
// If the cache is empty for T and T is not marked transient, the reaction
// is rejected for this emission.
func With[T any]() InputDescriptor {
	return InputDescriptor{kind: inputWith, typeKey: typeKeyOf[T]()}
}

// Last declares a bounded history window of the n most recent values of T
// observed by the owning reaction since its registration.
func Last[T any](n int) InputDescriptor {
	return InputDescriptor{kind: inputLast, typeKey: typeKeyOf[T](), n: n}
}

// TimerTick declares that the reaction consumes scheduling metadata
// (scheduled time, actual fire time, drift) supplied by the timer service.
func TimerTick() InputDescriptor {
	return InputDescriptor{kind: inputTimerTick}
}

// IOEvent declares that the reaction consumes a file-descriptor readiness
// notification (fd, event mask) supplied by the I/O watcher.
func IOEvent() InputDescriptor {
	return InputDescriptor{kind: inputIOEvent}
}

// Scope controls how an emission is delivered. See [Runtime.Emit].
type Scope int

const (
	// ScopeLocal publishes into the cache (if the type is cacheable) and
	// enqueues tasks for subscribers via the scheduler. This is the
	// default scope.
	ScopeLocal Scope = iota
	// ScopeDirect bypasses the scheduler: every subscriber's factory and
	// callback runs synchronously, in subscription order, on the calling
	// goroutine. Used for internal control messages that must take
	// effect before the publisher returns.
	ScopeDirect
	// ScopeInitialise caches the value without firing any reaction. Used
	// to install always-available parameters before reactors start.
	ScopeInitialise
	// ScopeNetwork hands the value to the configured NetworkReactor
	// instead of firing local subscribers.
	ScopeNetwork
)

// String renders the scope's name for logging.
func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeDirect:
		return "direct"
	case ScopeInitialise:
		return "initialise"
	case ScopeNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// TimerTickInfo is the metadata supplied to a reaction declaring
// [TimerTick]: the time the firing was scheduled for, the time it actually
// ran, and the drift between the two.
type TimerTickInfo struct {
	Scheduled time.Time
	Actual    time.Time
	Drift     time.Duration
}

// IOEventInfo is the metadata supplied to a reaction declaring [IOEvent]:
// the file descriptor that became ready and the readiness mask observed.
type IOEventInfo struct {
	FD     int
	Events IOEvents
}
