//go:build linux || darwin

package reactor

import "golang.org/x/sys/unix"

func closeFD(fd int) error { return unix.Close(fd) }

func readFD(fd int, buf []byte) (int, error) { return unix.Read(fd, buf) }

func writeFD(fd int, buf []byte) (int, error) { return unix.Write(fd, buf) }
