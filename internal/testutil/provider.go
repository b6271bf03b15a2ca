package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/alshdavid/procmon/internal/models"
)

// FakeProvider is a collector.Provider whose process lives for Alive
// refreshes and reports fixed metric values.
type FakeProvider struct {
	Alive     int
	CPU       float64
	Memory    uint64
	DiskRead  uint64
	DiskWrite uint64
	// FailReads makes every metric read return an error.
	FailReads bool

	mu        sync.Mutex
	refreshes int
	pids      []int32
}

var errFakeRead = errors.New("fake read failure")

// Refresh implements collector.Provider.
func (f *FakeProvider) Refresh(_ context.Context, pid int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pids = append(f.pids, pid)
	f.refreshes++
	return f.refreshes <= f.Alive
}

// CPUPercent implements collector.Provider.
func (f *FakeProvider) CPUPercent(context.Context, int32) (float64, error) {
	if f.FailReads {
		return 0, errFakeRead
	}
	return f.CPU, nil
}

// MemoryBytes implements collector.Provider.
func (f *FakeProvider) MemoryBytes(context.Context, int32) (uint64, error) {
	if f.FailReads {
		return 0, errFakeRead
	}
	return f.Memory, nil
}

// DiskIO implements collector.Provider.
func (f *FakeProvider) DiskIO(context.Context, int32) (uint64, uint64, error) {
	if f.FailReads {
		return 0, 0, errFakeRead
	}
	return f.DiskRead, f.DiskWrite, nil
}

// Refreshes returns how many times Refresh was called.
func (f *FakeProvider) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// PIDs returns the pid passed to every Refresh call.
func (f *FakeProvider) PIDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.pids...)
}

// RowRecorder is an in-memory sampler.RowWriter. Once Err is set every
// Write fails with it.
type RowRecorder struct {
	mu   sync.Mutex
	rows []models.Row
	Err  error
}

// Write records row.
func (r *RowRecorder) Write(row models.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.rows = append(r.rows, row)
	return nil
}

// Rows returns the recorded rows.
func (r *RowRecorder) Rows() []models.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Row(nil), r.rows...)
}
