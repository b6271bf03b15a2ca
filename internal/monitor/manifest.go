package monitor

import (
	"path/filepath"
	"time"

	"github.com/alshdavid/procmon/internal/config"
)

// Manifest is the run.yaml summary written next to the report.
type Manifest struct {
	RunID     string           `yaml:"run_id"`
	Command   []string         `yaml:"command,omitempty"`
	PID       int32            `yaml:"pid"`
	Attached  bool             `yaml:"attached"`
	StartedAt time.Time        `yaml:"started_at"`
	Duration  config.Duration  `yaml:"duration"`
	ExitCode  int              `yaml:"exit_code"`
	Samples   int              `yaml:"samples"`
	Rows      int              `yaml:"rows"`
	Report    string           `yaml:"report"`
	Chart     string           `yaml:"chart,omitempty"`
	Settings  *config.Settings `yaml:"settings"`
}

func writeManifest(path string, res *Result, cfg *config.Settings) error {
	m := Manifest{
		RunID:     res.RunID,
		Command:   cfg.Command,
		PID:       res.PID,
		Attached:  cfg.PID != 0,
		StartedAt: res.StartedAt.UTC(),
		Duration:  config.Duration{Duration: res.Duration},
		ExitCode:  res.ExitCode,
		Samples:   res.Samples,
		Rows:      len(res.Rows),
		Report:    filepath.Base(res.Report),
		Settings:  cfg,
	}
	if res.Chart != "" {
		m.Chart = filepath.Base(res.Chart)
	}
	return config.WriteConfig(m, path)
}
