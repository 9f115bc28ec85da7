// Package reactor implements an in-process reactive runtime for assembling
// concurrent software out of loosely coupled units called reactors. A
// reactor declares reactions: typed callbacks that fire when data of a
// particular shape is published into the runtime. The runtime owns a
// thread pool, a type-indexed message bus, a timer service, and an I/O
// watcher, dispatching reactions according to priority, concurrency, and
// ordering rules declared at reaction-definition time.
//
// # Architecture
//
// A [Runtime] owns the bus (type registry plus last-value cache), the
// scheduler (priority queue plus N worker goroutines), the timer service,
// and the I/O watcher. Users install [Reactor] implementations via
// [Runtime.Install]; a reactor declares reactions via
// [ReactorContext.On], receiving a [Handle] it can later use to enable,
// disable, or unbind the reaction.
//
// Reactions declare their inputs as a small set of typed descriptors
// ([Trigger], [With], [Last], [TimerTick], [IOEvent]) rather than through
// compile-time template machinery; a task factory resolves those
// descriptors into the [Args] tuple passed to the reaction's callback, or
// silently rejects the prospective task when a required input is absent.
//
// # Emission scopes
//
// [Runtime.Emit] accepts a [Scope] controlling delivery: [ScopeLocal] (the
// default, asynchronous, cache-updating), [ScopeDirect] (synchronous,
// used for internal control messages), [ScopeInitialise] (cache-only, no
// reactions fire), and [ScopeNetwork] (handed to an external
// [NetworkReactor] collaborator; wire format is outside this package's
// scope).
//
// # Concurrency model
//
// Parallel, pre-emptable goroutines. N workers consume a single priority
// queue; mutex-group keys serialise competing tasks; the single-flight
// option is enforced by the task factory before a task ever reaches the
// scheduler. There is no task-level pre-emption: a reaction runs to
// completion on the worker that dequeued it.
//
// # Usage
//
//	rt, err := reactor.New(reactor.WithThreadCount(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Shutdown(context.Background())
//
//	rt.Install(reactor.ReactorFunc(func(ctx *reactor.ReactorContext) {
//	    ctx.On(reactor.Trigger[Ping]()).Do(func(args reactor.Args) {
//	        fmt.Println("got", reactor.ValueAt[Ping](args, 0))
//	    })
//	}))
//
//	if err := rt.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package reactor
