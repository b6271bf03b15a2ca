// Package monitor wires a run together: it creates the report, starts the
// launcher and the sampler concurrently, joins both and then renders the
// chart and the run manifest from the recorded rows.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alshdavid/procmon/internal/collector"
	"github.com/alshdavid/procmon/internal/config"
	"github.com/alshdavid/procmon/internal/launcher"
	"github.com/alshdavid/procmon/internal/models"
	"github.com/alshdavid/procmon/internal/plot"
	"github.com/alshdavid/procmon/internal/report"
	"github.com/alshdavid/procmon/internal/sampler"
)

// Result describes a completed run.
type Result struct {
	RunID     string
	Dir       string
	Report    string
	Chart     string // empty when no chart was drawn
	Manifest  string
	PID       int32
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	Samples   int
	Rows      []models.Row
}

// Run executes one monitoring session described by cfg, which must already
// be validated. Nothing is started if the report destination cannot be
// created. Run blocks until the monitored process has exited and the
// sampler has observed it; there is no timeout.
func Run(ctx context.Context, cfg *config.Settings, provider collector.Provider, logger *zap.Logger) (*Result, error) {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	cols := report.ColumnsFor(cfg)
	units := report.Units{Time: cfg.TimeUnits, Memory: cfg.MemUnits}
	sink, err := report.Create(cfg.ReportDir, cfg.Overwrite(), cols, units, logger)
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	logger.Info("Run starting",
		zap.String("report", sink.Path()),
		zap.Duration("interval", cfg.Interval.Duration),
		zap.Bool("cpu", cols.CPU),
		zap.Bool("memory", cols.Memory),
		zap.Bool("disk", cols.Disk))

	smp := sampler.New(provider, sink, cfg.Interval.Duration, cols, logger)
	lnc := launcher.New(cfg.Command, cfg.PID, cfg.Interval.Duration, sink, provider, logger)
	handoff := models.NewHandoff()
	samplerDone := make(chan struct{})
	lnc.SamplerDone = samplerDone

	// A failing worker cancels gctx, which kills the child so the other
	// worker can finish too.
	g, gctx := errgroup.WithContext(ctx)
	var elapsed time.Duration
	g.Go(func() error {
		var err error
		elapsed, err = lnc.Launch(gctx, handoff)
		return err
	})
	g.Go(func() error {
		defer close(samplerDone)
		return smp.Run(gctx, handoff)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, launcher.ErrSpawnFailed) {
			if derr := sink.Discard(); derr != nil {
				logger.Warn("Failed to remove report of aborted run", zap.Error(derr))
			}
		}
		return nil, err
	}

	res := &Result{
		RunID:     runID,
		Dir:       sink.Dir(),
		Report:    sink.Path(),
		PID:       lnc.PID(),
		StartedAt: lnc.StartedAt(),
		Duration:  elapsed,
		ExitCode:  lnc.ExitCode(),
		Samples:   smp.Samples(),
		Rows:      sink.Rows(),
	}
	if err := sink.Close(); err != nil {
		return res, fmt.Errorf("closing report: %w", err)
	}

	if cols.CPU || cols.Memory {
		chartPath := filepath.Join(res.Dir, report.ChartName)
		if err := plot.Render(chartPath, res.Rows); err != nil {
			return res, fmt.Errorf("writing chart: %w", err)
		}
		res.Chart = chartPath
	} else {
		logger.Info("CPU and memory disabled, skipping chart")
	}

	res.Manifest = filepath.Join(res.Dir, report.ManifestName)
	if err := writeManifest(res.Manifest, res, cfg); err != nil {
		return res, fmt.Errorf("writing manifest: %w", err)
	}

	logger.Info("Run finished",
		zap.Int32("pid", res.PID),
		zap.Duration("duration", res.Duration),
		zap.Int("samples", res.Samples),
		zap.Int("exit_code", res.ExitCode))
	return res, nil
}
