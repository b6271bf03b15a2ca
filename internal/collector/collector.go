// Package collector defines the Provider interface through which procmon
// reads per-process resource usage, and its gopsutil implementation.
package collector

import "context"

// Provider reads resource usage for a single process id.
type Provider interface {
	// Refresh reports whether the process still exists. False means the
	// process is gone and sampling should stop.
	Refresh(ctx context.Context, pid int32) bool

	// CPUPercent returns CPU usage since the previous call for the same pid,
	// in percentage points of one core (values above 100 are possible).
	CPUPercent(ctx context.Context, pid int32) (float64, error)

	// MemoryBytes returns the resident set size.
	MemoryBytes(ctx context.Context, pid int32) (uint64, error)

	// DiskIO returns cumulative bytes read and written since process start.
	DiskIO(ctx context.Context, pid int32) (read, write uint64, err error)
}
