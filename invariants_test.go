package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invariantPayload struct{ N int }

// Property 3 — priority ordering: with a single worker, K simultaneously
// ready tasks execute in non-increasing priority order, ties breaking by
// registration (task id) order.
func TestInvariantPriorityOrderingSingleWorker(t *testing.T) {
	rt, err := New(WithThreadCount(1), WithLogger(NoLogging()))
	require.NoError(t, err)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	var mu sync.Mutex
	var order []string

	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		record := func(name string) func(Args) {
			return func(Args) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}
		}
		ctx.On(Trigger[invariantPayload]()).Priority(PriorityLow).Do(record("low"))
		ctx.On(Trigger[invariantPayload]()).Priority(PriorityRealtime).Do(record("realtime"))
		ctx.On(Trigger[invariantPayload]()).Priority(PriorityNormal).Do(record("normal"))
	}))

	// block the single worker briefly so all three tasks queue up together.
	rt.scheduler.submit(&Task{
		id: 0,
		reaction: newReaction(0, 0, nil, func(Args) {
			time.Sleep(30 * time.Millisecond)
		}, resolveReactionOptions(nil)),
	})
	time.Sleep(5 * time.Millisecond)
	rt.Emit(invariantPayload{}, ScopeLocal)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"realtime", "normal", "low"}, order)
}

// Property 4 — cache monotonicity: after emit(v) returns on a cacheable
// type, a subsequent snapshot never observes a value older than v.
func TestInvariantCacheMonotonicity(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	for i := 1; i <= 50; i++ {
		rt.Emit(invariantPayload{N: i}, ScopeLocal)
		v, ok := rt.bus.snapshot(typeKeyOf[invariantPayload]())
		require.True(t, ok)
		assert.GreaterOrEqual(t, v.(invariantPayload).N, i)
	}
}

// Property 6 — unbind quiescence: after Unbind returns and the pool drains,
// no further tasks for that reaction dispatch.
func TestInvariantUnbindQuiescence(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Start(t.Context()))
	defer func() { _ = rt.Shutdown(t.Context()) }()

	var mu sync.Mutex
	count := 0
	var handle Handle
	_ = rt.Install(ReactorFunc(func(ctx *ReactorContext) {
		handle = ctx.On(Trigger[invariantPayload]()).Do(func(Args) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}))

	rt.Emit(invariantPayload{N: 1}, ScopeLocal)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	handle.Unbind()
	rt.Emit(invariantPayload{N: 2}, ScopeLocal)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "no further tasks should dispatch for an unbound reaction")
}

// Property 1 and 2 (mutex-group exclusion, single-flight) are exercised at
// the scheduler and task-factory levels in scheduler_test.go and
// task_test.go respectively; property 5 (history window size) and property
// 7 (timer cadence) are exercised in scenarios_test.go (S3, S5) and
// timer_test.go.
