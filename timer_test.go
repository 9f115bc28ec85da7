package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimerService(submit func(*Task)) *timerService {
	return newTimerService(RealClock{}, newBus(), submit, counter(), NoLogging())
}

func TestTimerServiceFiresPeriodically(t *testing.T) {
	r := newReaction(1, 1, []InputDescriptor{TimerTick()}, func(Args) {}, resolveReactionOptions(nil))

	var mu sync.Mutex
	var ticks []TimerTickInfo
	submit := func(task *Task) {
		mu.Lock()
		ticks = append(ticks, ValueAt[TimerTickInfo](task.args, 0))
		mu.Unlock()
	}

	s := newTestTimerService(submit)
	go s.run()
	defer s.stop()

	s.configure(r, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTimerServiceUnbindStopsFiring(t *testing.T) {
	r := newReaction(1, 1, []InputDescriptor{TimerTick()}, func(Args) {}, resolveReactionOptions(nil))

	var mu sync.Mutex
	var count int
	submit := func(*Task) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	s := newTestTimerService(submit)
	go s.run()
	defer s.stop()

	s.configure(r, 15*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	}, time.Second, 5*time.Millisecond)

	s.unbindReaction(r.id)
	mu.Lock()
	seen := count
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, seen, count, "unbound reaction must not fire again")
}

func TestTimerServiceReconfigureReplacesPeriod(t *testing.T) {
	r := newReaction(1, 1, []InputDescriptor{TimerTick()}, func(Args) {}, resolveReactionOptions(nil))
	s := newTestTimerService(func(*Task) {})

	s.configure(r, time.Hour)
	require.Len(t, s.queue, 1)
	first := s.queue[0].scheduled

	s.configure(r, time.Minute)
	require.Len(t, s.queue, 1, "reconfiguring must replace, not duplicate, the registration")
	assert.True(t, s.queue[0].scheduled.Before(first))
}

func TestTimerTickInfoReportsDrift(t *testing.T) {
	r := newReaction(1, 1, []InputDescriptor{TimerTick()}, func(Args) {}, resolveReactionOptions(nil))

	var mu sync.Mutex
	var got TimerTickInfo
	submit := func(task *Task) {
		mu.Lock()
		got = ValueAt[TimerTickInfo](task.args, 0)
		mu.Unlock()
	}

	s := newTestTimerService(submit)
	go s.run()
	defer s.stop()

	s.configure(r, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !got.Actual.IsZero()
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, got.Actual.Sub(got.Scheduled), got.Drift)
}
