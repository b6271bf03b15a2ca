// Package report provides the append-only CSV report of a monitoring run.
// Every row is written and synced to disk as soon as it arrives, so the file
// is always a valid prefix of the final report, and an in-memory history is
// kept for the end-of-run chart.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/alshdavid/procmon/internal/config"
	"github.com/alshdavid/procmon/internal/models"
)

const (
	// CSVName is the report file name inside the destination directory.
	CSVName = "report.csv"
	// ChartName is the chart file name inside the destination directory.
	ChartName = "report.png"
	// ManifestName is the run manifest file name inside the destination directory.
	ManifestName = "run.yaml"
)

// ErrDestinationExists is returned by Create when the destination is present
// and overwriting was not allowed.
var ErrDestinationExists = errors.New("report destination already exists")

// Columns is the set of optional metric columns written for a run.
type Columns struct {
	CPU    bool
	Memory bool
	Disk   bool
}

// ColumnsFor derives the column selection from the settings.
func ColumnsFor(s *config.Settings) Columns {
	return Columns{
		CPU:    !s.NoCPU,
		Memory: !s.NoMemory,
		Disk:   !s.NoDisk,
	}
}

// Units controls how time and memory values are rendered.
type Units struct {
	Time   config.TimeUnit
	Memory config.MemoryUnit
}

// Header returns the header fields for the given columns and units.
func Header(cols Columns, units Units) []string {
	header := []string{"time_" + string(units.Time)}
	if cols.CPU {
		header = append(header, "cpu")
	}
	if cols.Memory {
		header = append(header, "memory_"+string(units.Memory))
	}
	if cols.Disk {
		header = append(header, "disk_read", "disk_write")
	}
	return header
}

// Format renders a row as CSV fields. Fields of disabled columns are never
// emitted; an enabled field with no value is left empty.
func Format(row models.Row, cols Columns, units Units) []string {
	var line []string
	switch units.Time {
	case config.TimeSeconds:
		line = append(line, strconv.FormatFloat(float64(row.Time.Milliseconds())/1000, 'f', 3, 64))
	default:
		line = append(line, strconv.FormatInt(row.Time.Milliseconds(), 10))
	}
	if cols.CPU {
		line = append(line, formatUint(row.CPU, 1))
	}
	if cols.Memory {
		line = append(line, formatUint(row.Memory, units.Memory.Divisor()))
	}
	if cols.Disk {
		line = append(line, formatUint(row.DiskRead, 1), formatUint(row.DiskWrite, 1))
	}
	return line
}

func formatUint(v *uint64, divisor uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v/divisor, 10)
}

// Sink owns the report file and the ordered history of rows written to it.
// It is safe for concurrent use.
type Sink struct {
	dir     string
	created bool // dir did not exist before Create
	cols    Columns
	units   Units
	logger  *zap.Logger

	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
	rows []models.Row
	err  error
}

// Create prepares the destination directory and writes the report header.
// If dir exists and overwrite is false it fails with ErrDestinationExists
// without touching anything. With overwrite, a previous report is replaced.
func Create(dir string, overwrite bool, cols Columns, units Units, logger *zap.Logger) (*Sink, error) {
	created := true
	if _, err := os.Stat(dir); err == nil {
		created = false
		if !overwrite {
			return nil, fmt.Errorf("%w: %s", ErrDestinationExists, dir)
		}
		logger.Debug("Replacing existing report", zap.String("dir", dir))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking report destination: %w", err)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	// A chart or manifest left by a previous run must not outlive its report.
	for _, name := range []string{ChartName, ManifestName} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing previous %s: %w", name, err)
		}
	}

	f, err := os.OpenFile(filepath.Join(dir, CSVName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}

	s := &Sink{
		dir:     dir,
		created: created,
		cols:    cols,
		units:   units,
		logger:  logger,
		file:    f,
		csv:     csv.NewWriter(f),
	}
	if err := s.writeLine(Header(cols, units)); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing report header: %w", err)
	}
	return s, nil
}

// Dir returns the destination directory.
func (s *Sink) Dir() string { return s.dir }

// Path returns the path of the CSV report.
func (s *Sink) Path() string { return filepath.Join(s.dir, CSVName) }

// Write appends row to the report file and to the history. A failed write
// is sticky: every later call returns the same error and the row is not
// recorded, so the history never diverges from the file.
func (s *Sink) Write(row models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if err := s.writeLine(Format(row, s.cols, s.units)); err != nil {
		s.err = fmt.Errorf("writing report row: %w", err)
		s.logger.Error("Report write failed", zap.Error(err))
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

// writeLine must be called with s.mu held, or before s is shared.
func (s *Sink) writeLine(fields []string) error {
	if err := s.csv.Write(fields); err != nil {
		return err
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Rows returns a copy of every row written so far, in write order.
func (s *Sink) Rows() []models.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]models.Row, len(s.rows))
	copy(rows, s.rows)
	return rows
}

// Close closes the report file. Further writes fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		s.err = errors.New("report closed")
	}
	return s.file.Close()
}

// Discard closes the report and deletes it. The destination directory is
// removed too if Create made it and nothing else is left in it. It is used
// when a run is abandoned before the monitored process ever started.
func (s *Sink) Discard() error {
	s.Close()
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if s.created {
		// Fails harmlessly when the directory holds other files.
		_ = os.Remove(s.dir)
	}
	return nil
}
