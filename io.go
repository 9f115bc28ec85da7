package reactor

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-longpoll"
	"github.com/joeycumines/logiface"
)

// ioRegistration binds a file descriptor and readiness mask to the
// reaction that should run when it fires, per the component design's
// IOEvent input.
type ioRegistration struct {
	fd       int
	mask     IOEvents
	reaction *Reaction
}

// ioReadiness is one raw readiness notification captured off the
// poller's goroutine, queued for batched dispatch.
type ioReadiness struct {
	fd     int
	events IOEvents
	at     time.Time
}

// IOWatcher multiplexes file descriptor readiness onto reactions. It
// owns a single poller goroutine (blocking in PollIO) and a dispatch
// goroutine that drains readiness notifications in batches via
// longpoll.Channel, so a burst of simultaneously-ready descriptors
// resolves its reactions as one coalesced wave rather than one task
// submission per fd.
type IOWatcher struct {
	poller *FastPoller
	clock  Clock
	bus    *bus
	submit func(*Task)
	nextID func() uint64
	logger *logiface.Logger[*Event]

	wakeReadFd  int
	wakeWriteFd int

	mu    sync.Mutex
	byFD  map[int]*ioRegistration
	byID  map[uint64]int // reaction id -> fd
	ready chan ioReadiness

	closeOnce sync.Once
	done      chan struct{}
}

func newIOWatcher(clock Clock, b *bus, submit func(*Task), nextID func() uint64, logger *logiface.Logger[*Event]) (*IOWatcher, error) {
	w := &IOWatcher{
		poller: &FastPoller{},
		clock:  clock,
		bus:    b,
		submit: submit,
		nextID: nextID,
		logger: logger,
		byFD:   make(map[int]*ioRegistration),
		byID:   make(map[uint64]int),
		ready:  make(chan ioReadiness, 4096),
		done:   make(chan struct{}),
	}
	if err := w.poller.Init(); err != nil {
		return nil, WrapError("io watcher init", err)
	}
	if err := w.initWake(); err != nil {
		_ = w.poller.Close()
		return nil, WrapError("io watcher wake init", err)
	}
	return w, nil
}

// configure registers or replaces the reaction bound to fd, applying the
// IOConfigure control message semantics of Emit.
func (w *IOWatcher) configure(fd int, mask IOEvents, reaction *Reaction) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.byFD[fd]; ok {
		delete(w.byID, existing.reaction.id)
		_ = w.poller.ModifyFD(fd, mask)
		w.byFD[fd] = &ioRegistration{fd: fd, mask: mask, reaction: reaction}
		w.byID[reaction.id] = fd
		return
	}

	reg := &ioRegistration{fd: fd, mask: mask, reaction: reaction}
	if err := w.poller.RegisterFD(fd, mask, func(events IOEvents) {
		w.onReadiness(fd, events)
	}); err != nil {
		if w.logger != nil {
			w.logger.Err().Int("fd", fd).Err(err).Log("io watcher register failed")
		}
		return
	}
	w.byFD[fd] = reg
	w.byID[reaction.id] = fd

	if w.logger != nil {
		w.logger.Debug().Str("category", catIO).Int("fd", fd).Uint64("reaction_id", reaction.id).Log("fd registered")
	}
}

// unbindReaction removes the fd registration owned by reactionID, if any.
func (w *IOWatcher) unbindReaction(reactionID uint64) {
	w.mu.Lock()
	fd, ok := w.byID[reactionID]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.byID, reactionID)
	delete(w.byFD, fd)
	w.mu.Unlock()

	_ = w.poller.UnregisterFD(fd)
}

// onReadiness runs on the poller goroutine; it must not block, so it only
// enqueues for the dispatch goroutine to pick up.
func (w *IOWatcher) onReadiness(fd int, events IOEvents) {
	select {
	case w.ready <- ioReadiness{fd: fd, events: events, at: w.clock.Now()}:
	default:
		// dispatch goroutine is behind; drop rather than block the poller.
		if w.logger != nil {
			w.logger.Warning().Int("fd", fd).Log("io watcher readiness dropped, dispatch backlog full")
		}
	}
}

// run drives the poller loop and the batched dispatch loop until ctx is
// cancelled or Close is called.
func (w *IOWatcher) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		w.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		w.dispatchLoop(ctx)
	}()

	wg.Wait()
}

func (w *IOWatcher) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		default:
		}
		if _, err := w.poller.PollIO(250); err != nil {
			if w.logger != nil {
				w.logger.Err().Err(err).Log("io watcher poll failed")
			}
			return
		}
	}
}

func (w *IOWatcher) dispatchLoop(ctx context.Context) {
	cfg := &longpoll.ChannelConfig{
		MaxSize:        64,
		MinSize:        1,
		PartialTimeout: 5 * time.Millisecond,
	}
	for {
		err := longpoll.Channel(ctx, cfg, w.ready, func(r ioReadiness) error {
			w.resolveAndSubmit(r)
			return nil
		})
		if err != nil {
			return
		}
	}
}

func (w *IOWatcher) resolveAndSubmit(r ioReadiness) {
	w.mu.Lock()
	reg, ok := w.byFD[r.fd]
	w.mu.Unlock()
	if !ok {
		return
	}

	ctx := &taskContext{ioEvent: &IOEventInfo{FD: r.fd, Events: r.events}}
	t, ok := resolveTask(reg.reaction, w.bus, nil, nil, false, ctx, r.at, w.nextID)
	if ok {
		w.submit(t)
	}
}

// Close stops the poller and dispatch goroutines and releases the
// underlying OS resources.
func (w *IOWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.wake()
		_ = closeWakeFd(w.wakeReadFd, w.wakeWriteFd)
	})
	return w.poller.Close()
}
