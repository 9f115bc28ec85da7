package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitTestEvent struct{ N int }

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(WithThreadCount(2), WithLogger(NoLogging()))
	require.NoError(t, err)
	return rt
}

func TestEmitScopeLocalDispatchesSubscribers(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	got := make(chan int, 1)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent]()).Do(func(args Args) {
			got <- ValueAt[emitTestEvent](args, 0).N
		})
	}))

	rt.Emit(emitTestEvent{N: 42}, ScopeLocal)

	select {
	case n := <-got:
		assert.Equal(t, 42, n)
	case <-time.After(time.Second):
		t.Fatal("reaction never ran")
	}
}

func TestEmitScopeInitialiseNeverFires(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	ran := make(chan struct{}, 1)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent]()).Do(func(Args) { ran <- struct{}{} })
	}))

	rt.Emit(emitTestEvent{N: 1}, ScopeInitialise)

	select {
	case <-ran:
		t.Fatal("ScopeInitialise must not fire subscribers")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := rt.bus.snapshot(typeKeyOf[emitTestEvent]())
	require.True(t, ok)
	assert.Equal(t, emitTestEvent{N: 1}, v)
}

func TestEmitScopeDirectRunsSynchronously(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	ran := false
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent]()).Do(func(Args) { ran = true })
	}))

	rt.Emit(emitTestEvent{N: 1}, ScopeDirect)
	assert.True(t, ran, "ScopeDirect must run subscribers before Emit returns")
}

func TestEmitScopeNetworkRoutesToNetworkReactor(t *testing.T) {
	network := &LoopbackNetworkReactor{}
	rt, err := New(WithThreadCount(1), WithLogger(NoLogging()), WithNetworkReactor(network))
	require.NoError(t, err)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	rt.Emit(emitTestEvent{N: 7}, ScopeNetwork)

	require.Eventually(t, func() bool {
		return len(network.Batches()) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, emitTestEvent{N: 7}, network.Batches()[0][0])
}

func TestReactionPanicEmitsReactionExceptionEvent(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	seen := make(chan uint64, 1)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent]()).Do(func(Args) {
			panic("boom")
		})
		ctx.On(Trigger[ReactionExceptionEvent]()).Do(func(args Args) {
			seen <- ValueAt[ReactionExceptionEvent](args, 0).ReactionID
		})
	}))

	rt.Emit(emitTestEvent{}, ScopeLocal)

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("ReactionExceptionEvent never published")
	}
}

func TestEmitScopeDirectLeavesSingleFlightReusable(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	runs := 0
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent]()).Single().Do(func(Args) { runs++ })
	}))

	rt.Emit(emitTestEvent{N: 1}, ScopeDirect)
	rt.Emit(emitTestEvent{N: 2}, ScopeDirect)
	rt.Emit(emitTestEvent{N: 3}, ScopeDirect)

	assert.Equal(t, 3, runs, "a Single() reaction must stay dispatchable across sequential ScopeDirect emissions")
}

func TestDeclareNonCacheableSkipsCachePopulation(t *testing.T) {
	rt := newTestRuntime(t)
	DeclareNonCacheable[busTestPayloadA](rt)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	rt.Emit(busTestPayloadA{N: 1}, ScopeLocal)
	time.Sleep(20 * time.Millisecond)

	_, ok := rt.bus.snapshot(typeKeyOf[busTestPayloadA]())
	assert.False(t, ok, "DeclareNonCacheable must prevent the last-value cache from being populated")
}

func TestDeclareTransientAllowsEmptyCacheThroughWith(t *testing.T) {
	rt := newTestRuntime(t)
	DeclareTransient[busTestPayloadB](rt)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	got := make(chan bool, 1)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent](), With[busTestPayloadB]()).Do(func(args Args) {
			got <- args[1] == nil
		})
	}))

	rt.Emit(emitTestEvent{}, ScopeLocal)

	select {
	case wasNil := <-got:
		assert.True(t, wasNil)
	case <-time.After(time.Second):
		t.Fatal("reaction never ran; With(T) should have passed through as nil")
	}
}
