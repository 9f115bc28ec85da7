package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionBuilderPeriodRegistersWithTimerService(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	ticks := make(chan TimerTickInfo, 8)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(TimerTick()).Period(10 * time.Millisecond).Do(func(args Args) {
			ticks <- ValueAt[TimerTickInfo](args, 0)
		})
	}))

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("periodic reaction never fired")
	}
}

func TestReactionBuilderIORegistersWithWatcher(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	fired := make(chan IOEventInfo, 1)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(IOEvent()).IO(int(r.Fd()), EventRead).Do(func(args Args) {
			fired <- ValueAt[IOEventInfo](args, 0)
		})
	}))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case info := <-fired:
		assert.Equal(t, int(r.Fd()), info.FD)
	case <-time.After(2 * time.Second):
		t.Fatal("io reaction never fired")
	}
}

func TestHandleUnbindRemovesBusSubscription(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	var handle Handle
	ran := make(chan struct{}, 1)
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		handle = ctx.On(Trigger[emitTestEvent]()).Do(func(Args) { ran <- struct{}{} })
	}))

	handle.Unbind()
	rt.Emit(emitTestEvent{}, ScopeLocal)

	select {
	case <-ran:
		t.Fatal("unbound reaction must not fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReactorCountAndHandlesAccumulate(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[emitTestEvent]()).Do(func(Args) {})
		ctx.On(Trigger[busTestPayloadA]()).Do(func(Args) {})
	}))
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		ctx.On(Trigger[busTestPayloadB]()).Do(func(Args) {})
	}))

	assert.Equal(t, 2, rt.ReactorCount())
	assert.Len(t, rt.Handles(), 3)
}
