package reactor

import (
	"container/heap"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// timerEntry is one periodic registration: fire every period, re-armed
// after each tick based on the scheduled (not actual) fire time, so
// drift does not accumulate across ticks.
type timerEntry struct {
	reaction  *Reaction
	period    time.Duration
	scheduled time.Time
	index     int
}

type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	return q[i].scheduled.Before(q[j].scheduled)
}
func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *timerQueue) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// timerService runs a dedicated goroutine that fires periodic reactions
// registered via TimerConfigure/UnbindTimer control messages, reporting
// scheduled-vs-actual drift on every tick as the component design's
// TimerTickInfo requires.
type timerService struct {
	clock  Clock
	bus    *bus
	submit func(*Task)
	nextID func() uint64
	logger *logiface.Logger[*Event]

	mu       sync.Mutex
	queue    timerQueue
	byID     map[uint64]*timerEntry
	wake     chan struct{}
	stopping bool
	done     chan struct{}
}

func newTimerService(clock Clock, b *bus, submit func(*Task), nextID func() uint64, logger *logiface.Logger[*Event]) *timerService {
	return &timerService{
		clock:  clock,
		bus:    b,
		submit: submit,
		nextID: nextID,
		logger: logger,
		byID:   make(map[uint64]*timerEntry),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// configure registers reaction to fire every period, starting one period
// from now. Re-registering an already-configured reaction replaces its
// period and resets its schedule.
func (s *timerService) configure(reaction *Reaction, period time.Duration) {
	if period <= 0 {
		return
	}
	s.mu.Lock()
	if existing, ok := s.byID[reaction.id]; ok {
		s.removeLocked(existing)
	}
	e := &timerEntry{reaction: reaction, period: period, scheduled: s.clock.Now().Add(period)}
	heap.Push(&s.queue, e)
	s.byID[reaction.id] = e
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug().Str("category", catTimer).Uint64("reaction_id", reaction.id).Dur("period", period).Log("timer configured")
	}
	s.signal()
}

// unbindReaction removes reactionID's periodic registration, if any.
func (s *timerService) unbindReaction(reactionID uint64) {
	s.mu.Lock()
	if e, ok := s.byID[reactionID]; ok {
		s.removeLocked(e)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *timerService) removeLocked(e *timerEntry) {
	delete(s.byID, e.reaction.id)
	if e.index >= 0 && e.index < len(s.queue) && s.queue[e.index] == e {
		heap.Remove(&s.queue, e.index)
	}
}

func (s *timerService) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run blocks, firing due timers, until stop is called.
func (s *timerService) run() {
	for {
		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			close(s.done)
			return
		}
		var timeout time.Duration
		if len(s.queue) == 0 {
			timeout = time.Hour
		} else {
			timeout = s.queue[0].scheduled.Sub(s.clock.Now())
			if timeout < 0 {
				timeout = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(timeout)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}

		s.fireDue()
	}
}

func (s *timerService) fireDue() {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*timerEntry
	for len(s.queue) > 0 && !s.queue[0].scheduled.After(now) {
		e := heap.Pop(&s.queue).(*timerEntry)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		info := &TimerTickInfo{Scheduled: e.scheduled, Actual: now, Drift: now.Sub(e.scheduled)}
		ctx := &taskContext{timerTick: info}
		if t, ok := resolveTask(e.reaction, s.bus, nil, nil, false, ctx, now, s.nextID); ok {
			s.submit(t)
		}

		s.mu.Lock()
		if _, stillBound := s.byID[e.reaction.id]; stillBound {
			e.scheduled = e.scheduled.Add(e.period)
			if e.scheduled.Before(now) {
				e.scheduled = now.Add(e.period)
			}
			heap.Push(&s.queue, e)
		}
		s.mu.Unlock()
	}
}

// stop signals the run goroutine to exit and blocks until it has.
func (s *timerService) stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.signal()
	<-s.done
}
