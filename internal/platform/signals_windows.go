//go:build windows

package platform

import (
	"errors"
	"os"
)

var watchedSignals = []os.Signal{os.Interrupt}

// Console control events already reach every process attached to the
// console, so nothing is forwarded on Windows.
func forwarded(os.Signal) bool { return false }

func forward(int, os.Signal) error {
	return errors.New("signal forwarding is not supported on windows")
}
