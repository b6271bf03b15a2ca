package collector

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsGone(t *testing.T) {
	tests := []struct {
		status []string
		want   bool
	}{
		{nil, false},
		{[]string{"running"}, false},
		{[]string{"sleep"}, false},
		{[]string{"zombie"}, true},
		{[]string{" Zombie "}, true},
		{[]string{"dead"}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isGone(tt.status), "status %v", tt.status)
	}
}

func TestProcessCollector_Self(t *testing.T) {
	ctx := context.Background()
	c := NewProcessCollector()
	pid := int32(os.Getpid())

	require.True(t, c.Refresh(ctx, pid))

	mem, err := c.MemoryBytes(ctx, pid)
	require.NoError(t, err)
	assert.NotZero(t, mem)

	_, err = c.CPUPercent(ctx, pid)
	require.NoError(t, err)
	cpu, err := c.CPUPercent(ctx, pid)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cpu, 0.0)
}

func TestProcessCollector_ExitedChild(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	cmd := exec.Command(path)
	require.NoError(t, cmd.Start())
	pid := int32(cmd.Process.Pid)
	require.NoError(t, cmd.Wait())

	c := NewProcessCollector()
	assert.False(t, c.Refresh(context.Background(), pid))
}

func TestProcessCollector_ConcurrentCallers(t *testing.T) {
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(path, "0.3")
	require.NoError(t, cmd.Start())
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	// GIVEN two pollers sharing one collector, as the launcher and the
	// sampler do when following an existing process
	ctx := context.Background()
	c := NewProcessCollector()
	pid := int32(cmd.Process.Pid)
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c.Refresh(ctx, pid) {
				_, _ = c.CPUPercent(ctx, pid)
				_, _ = c.MemoryBytes(ctx, pid)
				_, _, _ = c.DiskIO(ctx, pid)
				time.Sleep(5 * time.Millisecond)
			}
		}()
	}

	// THEN both notice the exit (run with -race to check the handle is
	// never used by both at once)
	require.NoError(t, <-waited)
	wg.Wait()
	assert.False(t, c.Refresh(ctx, pid))
}
