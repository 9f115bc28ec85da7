//go:build darwin

package reactor

import "syscall"

// createWakeFd creates a self-pipe for cross-goroutine poller wake-up:
// Darwin's kqueue has no eventfd equivalent.
func createWakeFd() (readFd, writeFd int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(readFd, writeFd int) error {
	if readFd >= 0 {
		_ = closeFD(readFd)
	}
	if writeFd >= 0 && writeFd != readFd {
		_ = closeFD(writeFd)
	}
	return nil
}

// initWake opens the wake pipe and registers its read end with the
// poller so a blocked PollIO returns as soon as another goroutine calls
// wake.
func (w *IOWatcher) initWake() error {
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		return err
	}
	w.wakeReadFd = readFd
	w.wakeWriteFd = writeFd
	return w.poller.RegisterFD(readFd, EventRead, func(IOEvents) {
		var buf [64]byte
		for {
			if _, err := readFD(readFd, buf[:]); err != nil {
				break
			}
		}
	})
}

func (w *IOWatcher) wake() error {
	_, err := writeFD(w.wakeWriteFd, []byte{1})
	return err
}
