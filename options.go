package reactor

import (
	"runtime"

	"github.com/joeycumines/logiface"
)

// Priority orders ready tasks. The named classes are representative
// points on the same integer scale as an explicit numeric override, so
// PriorityNumeric(150) sorts between PriorityNormal and PriorityHigh.
type Priority int

const (
	PriorityIdle     Priority = -2000
	PriorityLow      Priority = -1000
	PriorityNormal   Priority = 0
	PriorityHigh     Priority = 1000
	PriorityRealtime Priority = 2000
)

// PriorityNumeric builds an explicit numeric priority override.
func PriorityNumeric(v int) Priority {
	return Priority(v)
}

// runtimeOptions holds configuration resolved by [RuntimeOption]s passed to [New].
type runtimeOptions struct {
	threadCount int
	clock       Clock
	logger      *logiface.Logger[*Event]
	network     NetworkReactor
}

// RuntimeOption configures a [Runtime] at construction time.
type RuntimeOption interface {
	applyRuntime(*runtimeOptions) error
}

type runtimeOptionFunc func(*runtimeOptions) error

func (f runtimeOptionFunc) applyRuntime(opts *runtimeOptions) error {
	return f(opts)
}

// WithThreadCount sets the fixed worker pool size. n must be positive;
// violating that is reported as a [ConfigurationError] from [New].
func WithThreadCount(n int) RuntimeOption {
	return runtimeOptionFunc(func(opts *runtimeOptions) error {
		opts.threadCount = n
		return nil
	})
}

// WithClock overrides the monotonic time source used by the runtime and
// its timer service. Defaults to [RealClock].
func WithClock(c Clock) RuntimeOption {
	return runtimeOptionFunc(func(opts *runtimeOptions) error {
		if c == nil {
			return &ConfigurationError{Message: "clock must not be nil"}
		}
		opts.clock = c
		return nil
	})
}

// WithLogger sets the structured logger used by all runtime components.
// A nil logger (the default if WithLogger is never supplied) resolves to
// the package default: stumpy's JSON writer over stderr at informational
// level. Pass [NoLogging] to discard every entry.
func WithLogger(l *logiface.Logger[*Event]) RuntimeOption {
	return runtimeOptionFunc(func(opts *runtimeOptions) error {
		opts.logger = l
		return nil
	})
}

// WithNetworkReactor sets the collaborator that receives ScopeNetwork
// emissions. Defaults to a trivial in-process loopback implementation.
func WithNetworkReactor(n NetworkReactor) RuntimeOption {
	return runtimeOptionFunc(func(opts *runtimeOptions) error {
		if n == nil {
			return &ConfigurationError{Message: "network reactor must not be nil"}
		}
		opts.network = n
		return nil
	})
}

// resolveRuntimeOptions applies opts over the default configuration.
func resolveRuntimeOptions(opts []RuntimeOption) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		threadCount: runtime.GOMAXPROCS(0),
		clock:       RealClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.threadCount <= 0 {
		return nil, &ConfigurationError{Message: "thread_count must be positive"}
	}
	if cfg.network == nil {
		cfg.network = &LoopbackNetworkReactor{}
	}
	return cfg, nil
}

// reactionOptions holds configuration resolved by [ReactionOption]s passed to
// [ReactorContext.On].
type reactionOptions struct {
	priority   Priority
	syncGroup  string
	single     bool
	mainThread bool
}

// ReactionOption configures a single reaction at declaration time.
type ReactionOption interface {
	applyReaction(*reactionOptions)
}

type reactionOptionFunc func(*reactionOptions)

func (f reactionOptionFunc) applyReaction(opts *reactionOptions) {
	f(opts)
}

// WithPriority sets the reaction's priority class or numeric override.
// Defaults to [PriorityNormal].
func WithPriority(p Priority) ReactionOption {
	return reactionOptionFunc(func(opts *reactionOptions) {
		opts.priority = p
	})
}

// Sync attaches a mutex-group key. At most one task bearing the same key
// runs at any instant across the worker pool.
func Sync(group string) ReactionOption {
	return reactionOptionFunc(func(opts *reactionOptions) {
		opts.syncGroup = group
	})
}

// Single marks the reaction single-flight: at most one task for it may be
// pending or running at a time.
func Single() ReactionOption {
	return reactionOptionFunc(func(opts *reactionOptions) {
		opts.single = true
	})
}

// MainThread restricts dispatch of the reaction's tasks to the pool's
// pinned main worker.
func MainThread() ReactionOption {
	return reactionOptionFunc(func(opts *reactionOptions) {
		opts.mainThread = true
	})
}

// resolveReactionOptions applies opts over the default configuration.
func resolveReactionOptions(opts []ReactionOption) *reactionOptions {
	cfg := &reactionOptions{priority: PriorityNormal}
	for _, opt := range opts {
		if opt != nil {
			opt.applyReaction(cfg)
		}
	}
	return cfg
}
