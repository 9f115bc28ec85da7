package reactor

import (
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Event is the concrete logiface event type used by every logger this
// package constructs. Aliasing the stumpy event here means callers never
// need to import stumpy directly just to supply a [WithLogger] option.
type Event = stumpy.Event

// log categories, mirrored from the taxonomy the runtime's components log
// under: scheduler, timer, io, bus, reactor.
const (
	catScheduler = "scheduler"
	catTimer     = "timer"
	catIO        = "io"
	catBus       = "bus"
	catReactor   = "reactor"
)

// defaultLogger builds the logiface logger used when a Runtime is
// constructed without [WithLogger]: stumpy's JSON writer over stderr, at
// informational level.
func defaultLogger() *logiface.Logger[*Event] {
	return stumpy.L.New(
		stumpy.WithStumpy(stumpy.WithWriter(os.Stderr)),
		logiface.WithLevel[*Event](logiface.LevelInformational),
	)
}

// resolveLogger returns l if non-nil, otherwise the package default
// logger (stumpy JSON over stderr, informational level).
func resolveLogger(l *logiface.Logger[*Event]) *logiface.Logger[*Event] {
	if l != nil {
		return l
	}
	return defaultLogger()
}

// NoLogging returns a disabled logger that discards every entry, for use
// with [WithLogger] when no output is wanted at all.
func NoLogging() *logiface.Logger[*Event] {
	return logiface.New[*Event](logiface.WithLevel[*Event](logiface.LevelDisabled))
}
