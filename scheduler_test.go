package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reactionWithPriority(id uint64, p Priority) *Reaction {
	return newReaction(id, 1, nil, func(Args) {}, resolveReactionOptions([]ReactionOption{WithPriority(p)}))
}

func reactionWithGroup(id uint64, group string) *Reaction {
	return newReaction(id, 1, nil, func(Args) {}, resolveReactionOptions([]ReactionOption{Sync(group)}))
}

func TestTaskHeapOrdersByPriorityThenID(t *testing.T) {
	s := newScheduler(NoLogging())
	s.exec = func(*Task) {}

	high := reactionWithPriority(2, PriorityHigh)
	normalFirst := reactionWithPriority(1, PriorityNormal)
	normalSecond := reactionWithPriority(3, PriorityNormal)

	s.submit(&Task{id: 10, reaction: normalFirst})
	s.submit(&Task{id: 11, reaction: high})
	s.submit(&Task{id: 12, reaction: normalSecond})

	s.mu.Lock()
	s.drainIngressLocked()
	t1 := s.popReadyLocked(true)
	t2 := s.popReadyLocked(true)
	t3 := s.popReadyLocked(true)
	s.mu.Unlock()

	require.NotNil(t, t1)
	require.NotNil(t, t2)
	require.NotNil(t, t3)
	assert.Same(t, high, t1.reaction, "highest priority dispatches first")
	assert.Same(t, normalFirst, t2.reaction, "ties break by ascending task id")
	assert.Same(t, normalSecond, t3.reaction)
}

func TestSchedulerMutexGroupExcludesConcurrentRun(t *testing.T) {
	group := "g1"
	r1 := reactionWithGroup(1, group)
	r2 := reactionWithGroup(2, group)

	var mu sync.Mutex
	var active int
	var maxActive int
	release := make(chan struct{})

	body := func(Args) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		<-release

		mu.Lock()
		active--
		mu.Unlock()
	}
	r1.callback = body
	r2.callback = body

	s := newScheduler(NoLogging())
	s.exec = func(t *Task) { t.reaction.callback(nil) }
	s.start(4)

	s.submit(&Task{id: 1, reaction: r1})
	s.submit(&Task{id: 2, reaction: r2})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	gotMax := maxActive
	mu.Unlock()
	assert.Equal(t, 1, gotMax, "mutex group must serialize tasks sharing its key")

	close(release)
	s.drain()
	s.wait()
}

func TestSchedulerMainThreadPinning(t *testing.T) {
	r := newReaction(1, 1, nil, nil, resolveReactionOptions([]ReactionOption{MainThread()}))

	s := newScheduler(NoLogging())
	s.submit(&Task{id: 1, reaction: r})

	s.mu.Lock()
	s.drainIngressLocked()
	got := s.popReadyLocked(false)
	s.mu.Unlock()
	assert.Nil(t, got, "non-main worker must not take a MainThread task")

	s.mu.Lock()
	got = s.popReadyLocked(true)
	s.mu.Unlock()
	require.NotNil(t, got)
	assert.Same(t, r, got.reaction)
}

func TestSchedulerCompleteLockedPromotesBestWaiter(t *testing.T) {
	group := "g"
	low := reactionWithGroup(1, group)
	low.priority = PriorityLow
	high := reactionWithGroup(2, group)
	high.priority = PriorityHigh

	s := newScheduler(NoLogging())
	s.groupBusy[group] = true
	s.groupWaiters[group] = []*Task{
		{id: 1, reaction: low},
		{id: 2, reaction: high},
	}

	s.completeLocked(&Task{id: 99, reaction: reactionWithGroup(3, group)})

	require.Len(t, s.ready, 1)
	assert.Same(t, high, s.ready[0].reaction, "higher priority waiter is promoted first")
	assert.Len(t, s.groupWaiters[group], 1)
	assert.False(t, s.groupBusy[group], "group slot is released so the promoted waiter re-acquires it when popped")
}
