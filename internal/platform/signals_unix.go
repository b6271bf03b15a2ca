//go:build !windows

package platform

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var watchedSignals = []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP}

func forwarded(sig os.Signal) bool {
	return sig == unix.SIGTERM || sig == unix.SIGHUP
}

func forward(pid int, sig os.Signal) error {
	return unix.Kill(pid, sig.(syscall.Signal))
}
