// Per-process resource collector.
// Uses gopsutil for cross-platform process metrics.
package collector

import (
	"context"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// goneStatuses lists raw gopsutil status strings of processes that have
// exited but not yet been reaped.
var goneStatuses = map[string]bool{
	process.Zombie: true,
	"dead":         true,
}

// isGone reports whether a raw gopsutil status means the process has exited.
func isGone(status []string) bool {
	if len(status) == 0 {
		return false
	}
	return goneStatuses[strings.ToLower(strings.TrimSpace(status[0]))]
}

// ProcessCollector implements Provider on top of gopsutil. It keeps one
// process handle per pid so successive CPUPercent calls measure the CPU
// time consumed between them. gopsutil caches state inside each handle, so
// every call on a handle is made with mu held.
type ProcessCollector struct {
	mu    sync.Mutex
	procs map[int32]*process.Process
}

// NewProcessCollector creates a new process collector.
func NewProcessCollector() *ProcessCollector {
	return &ProcessCollector{procs: map[int32]*process.Process{}}
}

// handle must be called with c.mu held.
func (c *ProcessCollector) handle(ctx context.Context, pid int32) (*process.Process, error) {
	if p, ok := c.procs[pid]; ok {
		return p, nil
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	c.procs[pid] = p
	return p, nil
}

// with runs fn on the handle for pid while holding c.mu.
func (c *ProcessCollector) with(ctx context.Context, pid int32, fn func(p *process.Process) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.handle(ctx, pid)
	if err != nil {
		return err
	}
	return fn(p)
}

// Refresh reports whether pid still refers to a live process. Zombies count
// as gone, and so does a pid that was reused by a newer process.
func (c *ProcessCollector) Refresh(ctx context.Context, pid int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.handle(ctx, pid)
	if err != nil {
		return false
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		delete(c.procs, pid)
		return false
	}
	if status, err := p.StatusWithContext(ctx); err == nil && isGone(status) {
		delete(c.procs, pid)
		return false
	}
	return true
}

// CPUPercent returns the CPU usage since the previous call. The first call
// for a pid returns 0 while establishing a baseline.
func (c *ProcessCollector) CPUPercent(ctx context.Context, pid int32) (float64, error) {
	var pct float64
	err := c.with(ctx, pid, func(p *process.Process) (err error) {
		pct, err = p.PercentWithContext(ctx, 0)
		return err
	})
	return pct, err
}

// MemoryBytes returns the resident set size of pid.
func (c *ProcessCollector) MemoryBytes(ctx context.Context, pid int32) (uint64, error) {
	var rss uint64
	err := c.with(ctx, pid, func(p *process.Process) error {
		mem, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			return err
		}
		rss = mem.RSS
		return nil
	})
	return rss, err
}

// DiskIO returns the cumulative bytes read and written by pid.
func (c *ProcessCollector) DiskIO(ctx context.Context, pid int32) (uint64, uint64, error) {
	var read, write uint64
	err := c.with(ctx, pid, func(p *process.Process) error {
		io, err := p.IOCountersWithContext(ctx)
		if err != nil {
			return err
		}
		read, write = io.ReadBytes, io.WriteBytes
		return nil
	})
	return read, write, err
}
