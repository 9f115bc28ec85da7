//go:build windows

package reactor

import "golang.org/x/sys/windows"

// wakePoller posts a null completion to the port, causing a blocked
// PollIO to return immediately. Windows IOCP has no fd-based wake
// mechanism, unlike epoll/kqueue, so the I/O watcher calls this directly
// instead of writing to a wake pipe.
func wakePoller(p *FastPoller) error {
	return windows.PostQueuedCompletionStatus(p.port, 0, 0, nil)
}

// initWake is a no-op on Windows: wake uses PostQueuedCompletionStatus
// directly against the port rather than a registered fd.
func (w *IOWatcher) initWake() error {
	w.wakeReadFd = -1
	w.wakeWriteFd = -1
	return nil
}

// closeWakeFd is a no-op on Windows: there is no wake fd to close.
func closeWakeFd(readFd, writeFd int) error {
	return nil
}

func (w *IOWatcher) wake() error {
	return wakePoller(w.poller)
}
