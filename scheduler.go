package reactor

import (
	"container/heap"
	"sync"

	"github.com/joeycumines/logiface"
)

// taskHeap orders ready tasks by (priority DESC, task id ASC), matching
// the priority queue ordering the component design calls for. It
// implements container/heap.Interface.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	pi, pj := h[i].reaction.priority, h[j].reaction.priority
	if pi != pj {
		return pi > pj
	}
	return h[i].id < h[j].id
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		fatal("pop from empty task heap")
	}
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// scheduler is the priority-ordered ready queue and fixed worker pool: it
// owns mutex-group gating and runs accepted tasks to completion. Single-
// flight gating is enforced upstream, by the task factory.
type scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready   taskHeap
	ingress *taskIngress

	groupBusy    map[string]bool
	groupWaiters map[string][]*Task

	draining bool

	// exec invokes the reaction's callback for a task, recovering from
	// panics and surfacing them as ReactionExceptionEvent emissions. Set
	// once by the owning Runtime before workers start.
	exec func(*Task)

	logger *logiface.Logger[*Event]

	wg sync.WaitGroup
}

func newScheduler(logger *logiface.Logger[*Event]) *scheduler {
	s := &scheduler{
		ingress:      newTaskIngress(),
		groupBusy:    make(map[string]bool),
		groupWaiters: make(map[string][]*Task),
		logger:       logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// submit enqueues a resolved task for dispatch. Safe from any goroutine.
func (s *scheduler) submit(t *Task) {
	s.mu.Lock()
	s.ingress.Push(t)
	s.cond.Signal()
	s.mu.Unlock()
}

// start launches n worker goroutines. Worker 0 is the pinned main worker:
// only it ever dispatches tasks whose reaction declared [MainThread].
func (s *scheduler) start(n int) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		isMain := i == 0
		go s.workerLoop(isMain)
	}
}

// drain marks the scheduler as shutting down and wakes every worker so it
// can observe the new state. Workers that pick it up finish their current
// task, drain remaining queued and group-gated work, then exit.
func (s *scheduler) drain() {
	s.mu.Lock()
	s.draining = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// wait blocks until every worker goroutine has exited.
func (s *scheduler) wait() {
	s.wg.Wait()
}

func (s *scheduler) workerLoop(isMain bool) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		s.drainIngressLocked()

		task := s.popReadyLocked(isMain)
		for task == nil {
			if s.draining && s.idleLocked() {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
			s.drainIngressLocked()
			task = s.popReadyLocked(isMain)
		}
		s.mu.Unlock()

		s.runTask(task)
	}
}

// idleLocked reports whether there is no more work this worker set could
// ever make progress on: nothing queued, nothing ingressing, and no
// gated waiters (those only ever resume when a running task of the same
// group completes, which this check is re-evaluated after).
func (s *scheduler) idleLocked() bool {
	if s.ingress.Length() > 0 || len(s.ready) > 0 {
		return false
	}
	for _, w := range s.groupWaiters {
		if len(w) > 0 {
			return false
		}
	}
	return true
}

func (s *scheduler) drainIngressLocked() {
	for {
		t, ok := s.ingress.Pop()
		if !ok {
			return
		}
		heap.Push(&s.ready, t)
	}
}

// popReadyLocked finds the highest-priority task this worker may
// dispatch: its mutex-group (if any) must be free, and if it declared
// MainThread only the main worker may take it. Tasks skipped for either
// reason are parked (group-gated) or pushed back onto the heap
// (MainThread, when this worker isn't the main worker).
func (s *scheduler) popReadyLocked(isMain bool) *Task {
	var deferred []*Task
	var found *Task

	for len(s.ready) > 0 {
		t := heap.Pop(&s.ready).(*Task)

		if t.reaction.mainThread && !isMain {
			deferred = append(deferred, t)
			continue
		}
		if g := t.reaction.syncGroup; g != "" && s.groupBusy[g] {
			s.groupWaiters[g] = append(s.groupWaiters[g], t)
			continue
		}
		if g := t.reaction.syncGroup; g != "" {
			s.groupBusy[g] = true
			s.logger.Debug().Str("category", catScheduler).Str("group", g).Log("mutex group acquired")
		}
		found = t
		break
	}

	for _, t := range deferred {
		heap.Push(&s.ready, t)
	}

	return found
}

// runTask dispatches t through the scheduler's exec hook (the Runtime's
// invoke, in practice) and releases its mutex-group slot. Single-flight
// active/pending bookkeeping lives in invoke itself, since ScopeDirect
// emissions call it directly, bypassing the scheduler entirely.
func (s *scheduler) runTask(t *Task) {
	if s.exec != nil {
		s.exec(t)
	}
	s.completeLocked(t)
}

// completeLocked releases the task's mutex-group slot, if any, and
// promotes the highest-priority waiter for that group back onto the
// ready heap.
func (s *scheduler) completeLocked(t *Task) {
	g := t.reaction.syncGroup
	if g == "" {
		return
	}

	s.mu.Lock()
	waiters := s.groupWaiters[g]
	if len(waiters) == 0 {
		delete(s.groupBusy, g)
		s.mu.Unlock()
		return
	}

	bestIdx := 0
	for i := 1; i < len(waiters); i++ {
		if lessWaiter(waiters[i], waiters[bestIdx]) {
			bestIdx = i
		}
	}
	next := waiters[bestIdx]
	waiters = append(waiters[:bestIdx], waiters[bestIdx+1:]...)
	s.groupWaiters[g] = waiters
	// release the slot here so popReadyLocked legitimately re-acquires it
	// for next; leaving groupBusy set would strand next in groupWaiters
	// forever, since nothing else ever clears it for this group.
	delete(s.groupBusy, g)
	heap.Push(&s.ready, next)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// lessWaiter reports whether a sorts before b under the scheduler's priority
// ordering (priority DESC, task id ASC) — the same ordering waiters on a
// mutex-group key resume in.
func lessWaiter(a, b *Task) bool {
	if a.reaction.priority != b.reaction.priority {
		return a.reaction.priority > b.reaction.priority
	}
	return a.id < b.id
}
