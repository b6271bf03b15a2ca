// Package sampler implements the fixed-interval poll loop that measures the
// monitored process and forwards each sample to the report.
package sampler

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/alshdavid/procmon/internal/collector"
	"github.com/alshdavid/procmon/internal/models"
	"github.com/alshdavid/procmon/internal/report"
)

// RowWriter receives samples. *report.Sink implements it.
type RowWriter interface {
	Write(row models.Row) error
}

// Sampler polls one process until it disappears.
type Sampler struct {
	provider collector.Provider
	sink     RowWriter
	interval time.Duration
	cols     report.Columns
	logger   *zap.Logger

	samples int
}

// New creates a Sampler that measures the columns in cols every interval.
func New(provider collector.Provider, sink RowWriter, interval time.Duration, cols report.Columns, logger *zap.Logger) *Sampler {
	return &Sampler{
		provider: provider,
		sink:     sink,
		interval: interval,
		cols:     cols,
		logger:   logger.Named("sampler"),
	}
}

// Samples returns the number of samples written by the last Run. Only call
// it after Run has returned.
func (s *Sampler) Samples() int { return s.samples }

// Run blocks until the launcher hands over the process, then samples it
// every interval until the provider reports it gone. A closed handoff with
// no value means nothing was started and Run returns nil. The only error
// returned is a failed report write.
//
// ctx is passed to the provider queries; it does not interrupt the sleep
// between samples.
func (s *Sampler) Run(ctx context.Context, handoff <-chan models.Start) error {
	start, ok := <-handoff
	if !ok {
		s.logger.Debug("No process was started, nothing to sample")
		return nil
	}

	log := s.logger.With(zap.Int32("pid", start.PID))
	log.Debug("Sampling started", zap.Duration("interval", s.interval))

	for {
		// Stamped before the liveness check so a sample can never be later
		// than the exit the launcher observes.
		at := time.Since(start.At)
		if !s.provider.Refresh(ctx, start.PID) {
			break
		}
		if err := s.sink.Write(s.sample(ctx, start.PID, at)); err != nil {
			return err
		}
		s.samples++
		time.Sleep(s.interval)
	}

	log.Debug("Process gone, sampling stopped", zap.Int("samples", s.samples))
	return nil
}

// sample builds a row with the enabled metrics. Read failures, typically a
// process exiting mid-sample, leave the field at zero; the next Refresh
// will notice the exit.
func (s *Sampler) sample(ctx context.Context, pid int32, at time.Duration) models.Row {
	row := models.Row{Time: at}

	if s.cols.CPU {
		pct, err := s.provider.CPUPercent(ctx, pid)
		if err != nil {
			s.logger.Debug("CPU read failed", zap.Error(err))
		}
		row.CPU = models.Uint64(roundPercent(pct))
	}

	if s.cols.Memory {
		mem, err := s.provider.MemoryBytes(ctx, pid)
		if err != nil {
			s.logger.Debug("Memory read failed", zap.Error(err))
		}
		row.Memory = models.Uint64(mem)
	}

	if s.cols.Disk {
		read, write, err := s.provider.DiskIO(ctx, pid)
		if err != nil {
			s.logger.Debug("Disk I/O read failed", zap.Error(err))
		}
		row.DiskRead = models.Uint64(read)
		row.DiskWrite = models.Uint64(write)
	}

	return row
}

func roundPercent(pct float64) uint64 {
	if pct <= 0 || math.IsNaN(pct) {
		return 0
	}
	return uint64(math.Round(pct))
}
