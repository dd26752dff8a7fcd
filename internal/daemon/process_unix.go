//go:build !windows

package daemon

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func processAlive(pid int) bool {
	// signal 0 only checks for existence; EPERM means it exists but is not ours
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
