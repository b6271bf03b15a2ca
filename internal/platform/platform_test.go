//go:build !windows

package platform

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func TestForwarded(t *testing.T) {
	assert.False(t, forwarded(unix.SIGINT))
	assert.True(t, forwarded(unix.SIGTERM))
	assert.True(t, forwarded(unix.SIGHUP))
}

func TestRelay_ForwardsTermToChild(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(path, "30")
	require.NoError(t, cmd.Start())

	r := NewRelay(zaptest.NewLogger(t))
	defer r.Stop()
	r.Attach(cmd.Process.Pid)

	// WHEN procmon itself receives SIGTERM
	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGTERM))

	// THEN the child is terminated with the same signal
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()
	select {
	case err := <-waited:
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		status := exitErr.Sys().(syscall.WaitStatus)
		assert.Equal(t, unix.SIGTERM, status.Signal())
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("child was not terminated")
	}
}

func TestRelay_StopIsIdempotent(t *testing.T) {
	r := NewRelay(zaptest.NewLogger(t))
	r.Stop()
	r.Stop()
}
