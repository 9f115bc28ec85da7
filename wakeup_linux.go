//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

const (
	wakeEFDCloexec  = unix.EFD_CLOEXEC
	wakeEFDNonblock = unix.EFD_NONBLOCK
)

// createWakeFd creates an eventfd for cross-goroutine poller wake-up. The
// same fd serves as both read and write end.
func createWakeFd() (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(0, wakeEFDCloexec|wakeEFDNonblock)
	return fd, fd, err
}

func closeWakeFd(readFd, writeFd int) error {
	if readFd >= 0 {
		return closeFD(readFd)
	}
	return nil
}

// initWake opens the wake fd and registers it with the poller so a
// blocked PollIO returns as soon as another goroutine calls wake.
func (w *IOWatcher) initWake() error {
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		return err
	}
	w.wakeReadFd = readFd
	w.wakeWriteFd = writeFd
	return w.poller.RegisterFD(readFd, EventRead, func(IOEvents) {
		var buf [8]byte
		for {
			if _, err := readFD(readFd, buf[:]); err != nil {
				break
			}
		}
	})
}

func (w *IOWatcher) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := writeFD(w.wakeWriteFd, buf[:])
	return err
}
