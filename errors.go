package reactor

import (
	"fmt"
)

// ConfigurationError reports invalid configuration or lifecycle misuse: a
// non-positive thread count, a nil clock or network reactor, starting a
// runtime twice, or installing into a terminated runtime. It is fatal only
// to the operation that produced it; the runtime itself keeps running.
// Reaction registration reports no error: an fd the I/O watcher cannot
// register is only logged, and the reaction never fires.
type ConfigurationError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Message == "" {
		return "configuration error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a value recovered from a reaction callback panic. It is
// never returned to the caller of [Runtime.Emit]; the worker loop converts
// it into a [ReactionExceptionEvent] and keeps running.
type PanicError struct {
	Value      any
	ReactionID uint64
	Stack      []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("reaction %d panicked: %v", e.ReactionID, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error,
// enabling [errors.Is] and [errors.As] to see through the wrapper.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// FatalError marks a scheduler invariant violation. Encountering one aborts
// the process with a diagnostic, per the runtime's error handling design;
// it is never surfaced through [Runtime.Emit] or recovered from.
type FatalError struct {
	Message string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return "fatal runtime state: " + e.Message
}

// WrapError wraps cause with a message, preserving the chain for
// [errors.Is] and [errors.As].
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// fatal reports an unrecoverable scheduler invariant violation and aborts
// the process. It is only ever called from internal bookkeeping paths that
// the public API cannot reach in ordinary use.
func fatal(message string) {
	panic(&FatalError{Message: message})
}
