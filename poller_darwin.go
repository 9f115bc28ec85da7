//go:build darwin

package reactor

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// IOEvents is a bitmask of file-descriptor readiness conditions.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

var (
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)

// IOCallback is invoked, inline, on the poller's goroutine, when a
// registered fd becomes ready.
type IOCallback func(IOEvents)

type fdInfo struct {
	fd       int
	callback IOCallback
	events   IOEvents
}

// FastPoller is the kqueue-backed readiness primitive used by the I/O
// watcher on Darwin. Unlike the Linux epoll implementation it keeps a
// dynamic slice of registrations rather than a fixed-size array, since
// kqueue has no equivalent notion of a dense fd index.
type FastPoller struct {
	kq       int
	version  atomic.Uint64
	eventBuf [256]unix.Kevent_t

	fdMu sync.RWMutex
	fds  map[int]*fdInfo

	closed atomic.Bool
}

// Init creates the underlying kqueue instance.
func (p *FastPoller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = kq
	p.fds = make(map[int]*fdInfo)
	return nil
}

// Close releases the kqueue instance.
func (p *FastPoller) Close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(p.kq)
	}
	return nil
}

// RegisterFD starts monitoring fd for events, invoking cb on readiness.
func (p *FastPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}

	p.fdMu.Lock()
	if _, ok := p.fds[fd]; ok {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	info := &fdInfo{fd: fd, callback: cb, events: events}
	p.fds[fd] = info
	p.version.Add(1)
	p.fdMu.Unlock()

	changes := eventsToKevents(fd, events)
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		p.fdMu.Lock()
		delete(p.fds, fd)
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// UnregisterFD stops monitoring fd.
func (p *FastPoller) UnregisterFD(fd int) error {
	p.fdMu.Lock()
	info, ok := p.fds[fd]
	if !ok {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	p.version.Add(1)
	p.fdMu.Unlock()

	changes := eventsToKeventsDelete(fd, info.events)
	_, _ = unix.Kevent(p.kq, changes, nil, nil)
	return nil
}

// ModifyFD updates the event mask for a registered fd.
func (p *FastPoller) ModifyFD(fd int, events IOEvents) error {
	p.fdMu.Lock()
	info, ok := p.fds[fd]
	if !ok {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	old := info.events
	info.events = events
	p.version.Add(1)
	p.fdMu.Unlock()

	del := eventsToKeventsDelete(fd, old)
	if len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	add := eventsToKevents(fd, events)
	if len(add) > 0 {
		if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// PollIO blocks for up to timeoutMs milliseconds (negative blocks
// indefinitely) and dispatches ready callbacks inline, returning the
// number of events processed.
func (p *FastPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}

	v := p.version.Load()
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if p.version.Load() != v {
		return 0, nil
	}

	p.dispatchEvents(n)
	return n, nil
}

func (p *FastPoller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		kev := &p.eventBuf[i]
		fd := int(kev.Ident)

		p.fdMu.RLock()
		info, ok := p.fds[fd]
		p.fdMu.RUnlock()
		if !ok || info.callback == nil {
			continue
		}
		info.callback(keventToEvents(kev))
	}
}

func eventsToKevents(fd int, events IOEvents) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	}
	return out
}

func eventsToKeventsDelete(fd int, events IOEvents) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	return out
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	return events
}
