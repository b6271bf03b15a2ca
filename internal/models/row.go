// Package models defines the sample data structures shared by the sampler,
// the launcher, the report sink and the chart renderer.
package models

import "time"

// Row represents a single sample of the monitored process. Metric fields
// are nil when the corresponding metric is disabled for the run.
type Row struct {
	Time      time.Duration // since run start
	CPU       *uint64       // percentage points, may exceed 100 on multi-core
	Memory    *uint64       // resident bytes
	DiskRead  *uint64       // cumulative bytes
	DiskWrite *uint64       // cumulative bytes
}

// Bracket returns a lifecycle marker row: every metric field is present and
// zero. One is written at the true start of a run and one at its true end.
func Bracket(elapsed time.Duration) Row {
	return Row{
		Time:      elapsed,
		CPU:       Uint64(0),
		Memory:    Uint64(0),
		DiskRead:  Uint64(0),
		DiskWrite: Uint64(0),
	}
}

// IsBracket reports whether every metric field of r is present and zero.
func (r Row) IsBracket() bool {
	for _, v := range []*uint64{r.CPU, r.Memory, r.DiskRead, r.DiskWrite} {
		if v == nil || *v != 0 {
			return false
		}
	}
	return true
}

// Uint64 returns a pointer to v.
func Uint64(v uint64) *uint64 { return &v }
