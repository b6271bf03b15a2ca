// Package config resolves procmon settings from defaults, an optional YAML
// file, PM_* environment variables and command-line flags.
// Precedence: flags > environment variables > config file > defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a wrapper around time.Duration that can be read from YAML,
// environment variables and flags. A bare integer is taken as milliseconds
// ("250"), anything else must be a Go duration string ("250ms", "1s").
type Duration struct {
	time.Duration
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseUint(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalText lets caarlos0/env parse PM_INTERVAL.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Set implements flag.Value.
func (d *Duration) Set(s string) error { return d.UnmarshalText([]byte(s)) }

// MemoryUnit selects the divisor applied to resident memory in the report.
type MemoryUnit string

const (
	MemoryBytes     MemoryUnit = "b"
	MemoryKibibytes MemoryUnit = "kb"
	MemoryMebibytes MemoryUnit = "mb"
)

// Divisor returns the number of bytes in one unit.
func (u MemoryUnit) Divisor() uint64 {
	switch u {
	case MemoryKibibytes:
		return 1024
	case MemoryMebibytes:
		return 1024 * 1024
	default:
		return 1
	}
}

func (u MemoryUnit) valid() bool {
	return u == MemoryBytes || u == MemoryKibibytes || u == MemoryMebibytes
}

// TimeUnit selects how elapsed time is rendered in the report.
type TimeUnit string

const (
	TimeMilliseconds TimeUnit = "ms"
	TimeSeconds      TimeUnit = "s"
)

func (u TimeUnit) valid() bool {
	return u == TimeMilliseconds || u == TimeSeconds
}

// Settings holds everything a run needs. It is built once at startup and
// only read afterwards.
type Settings struct {
	Command    []string      `yaml:"command"`
	ReportDir  string        `yaml:"report" env:"PM_REPORT"`
	Interval   Duration      `yaml:"interval" env:"PM_INTERVAL"`
	MemUnits   MemoryUnit    `yaml:"mem_units" env:"PM_MEM_UNITS"`
	TimeUnits  TimeUnit      `yaml:"time_units" env:"PM_TIME_UNITS"`
	NoOverride bool          `yaml:"no_override_report" env:"PM_NO_OVERRIDE_REPORT"`
	NoCPU      bool          `yaml:"no_cpu" env:"PM_NO_CPU"`
	NoMemory   bool          `yaml:"no_memory" env:"PM_NO_MEMORY"`
	NoDisk     bool          `yaml:"no_disk" env:"PM_NO_DISK"`
	PID        int32         `yaml:"pid,omitempty" env:"PM_PID"`
	Logging    LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" env:"PM_LOG_LEVEL"`
	File  string `yaml:"file,omitempty" env:"PM_LOG_FILE"`
}

// Overwrite reports whether an existing report destination may be replaced.
func (s *Settings) Overwrite() bool { return !s.NoOverride }

// DefaultSettings returns the default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		ReportDir: "procmon",
		Interval:  Duration{250 * time.Millisecond},
		MemUnits:  MemoryMebibytes,
		TimeUnits: TimeMilliseconds,
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load reads settings from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and the environment.
func Load(path string) (*Settings, error) {
	cfg := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading env vars: %w", err)
	}
	return cfg, nil
}

// Locate returns the first existing file among the standard config paths,
// or the empty string.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Parse builds Settings from command-line arguments (without the program
// name). Flags override everything loaded from the config file and the
// environment; the remaining positional arguments are the command to run.
func Parse(args []string, output io.Writer) (*Settings, error) {
	fs := flag.NewFlagSet("procmon", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: procmon [flags] -- command [args...]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	var (
		cli        Settings
		configPath string
	)
	fs.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	fs.StringVar(&cli.ReportDir, "r", "", "Shorthand for -report")
	fs.StringVar(&cli.ReportDir, "report", "", "Output directory for the generated report")
	fs.Var(&cli.Interval, "i", "Shorthand for -interval")
	fs.Var(&cli.Interval, "interval", "How often to probe the process (milliseconds or duration)")
	fs.StringVar((*string)(&cli.MemUnits), "m", "", "Shorthand for -mem-units")
	fs.StringVar((*string)(&cli.MemUnits), "mem-units", "", "Units for recording memory: b, kb, mb")
	fs.StringVar((*string)(&cli.TimeUnits), "t", "", "Shorthand for -time-units")
	fs.StringVar((*string)(&cli.TimeUnits), "time-units", "", "Units for recording time: ms, s")
	fs.BoolVar(&cli.NoOverride, "no-override-report", false, "Fail instead of replacing an existing report")
	fs.BoolVar(&cli.NoCPU, "no-cpu", false, "Don't measure CPU usage")
	fs.BoolVar(&cli.NoMemory, "no-memory", false, "Don't measure memory usage")
	fs.BoolVar(&cli.NoDisk, "no-disk", false, "Don't measure disk usage")
	fs.Func("pid", "Attach to an existing process instead of spawning one", func(s string) error {
		pid, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return err
		}
		cli.PID = int32(pid)
		return nil
	})
	fs.StringVar(&cli.Logging.Level, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&cli.Logging.File, "log-file", "", "Also write JSON logs to this file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath == "" {
		configPath = Locate()
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "r", "report":
			cfg.ReportDir = cli.ReportDir
		case "i", "interval":
			cfg.Interval = cli.Interval
		case "m", "mem-units":
			cfg.MemUnits = cli.MemUnits
		case "t", "time-units":
			cfg.TimeUnits = cli.TimeUnits
		case "no-override-report":
			cfg.NoOverride = cli.NoOverride
		case "no-cpu":
			cfg.NoCPU = cli.NoCPU
		case "no-memory":
			cfg.NoMemory = cli.NoMemory
		case "no-disk":
			cfg.NoDisk = cli.NoDisk
		case "pid":
			cfg.PID = cli.PID
		case "log-level":
			cfg.Logging.Level = cli.Logging.Level
		case "log-file":
			cfg.Logging.File = cli.Logging.File
		}
	})

	if rest := fs.Args(); len(rest) > 0 {
		cfg.Command = rest
	}
	cfg.MemUnits = MemoryUnit(strings.ToLower(string(cfg.MemUnits)))
	cfg.TimeUnits = TimeUnit(strings.ToLower(string(cfg.TimeUnits)))

	if cfg.ReportDir != "" && !filepath.IsAbs(cfg.ReportDir) {
		abs, err := filepath.Abs(cfg.ReportDir)
		if err != nil {
			return nil, fmt.Errorf("resolving report path: %w", err)
		}
		cfg.ReportDir = abs
	}
	return cfg, nil
}

// Validate checks that the settings describe a runnable session. Every
// returned error wraps ErrInvalid.
func (s *Settings) Validate() error {
	switch {
	case len(s.Command) == 0 && s.PID == 0:
		return fmt.Errorf("%w: no command given", ErrInvalid)
	case len(s.Command) > 0 && s.PID != 0:
		return fmt.Errorf("%w: a command and -pid are mutually exclusive", ErrInvalid)
	case s.PID < 0:
		return fmt.Errorf("%w: pid must be positive (got %d)", ErrInvalid, s.PID)
	case s.Interval.Duration <= 0:
		return fmt.Errorf("%w: poll interval must be positive (got %s)", ErrInvalid, s.Interval.Duration)
	case !s.MemUnits.valid():
		return fmt.Errorf("%w: unknown memory unit %q (expected b, kb or mb)", ErrInvalid, s.MemUnits)
	case !s.TimeUnits.valid():
		return fmt.Errorf("%w: unknown time unit %q (expected ms or s)", ErrInvalid, s.TimeUnits)
	case s.ReportDir == "":
		return fmt.Errorf("%w: report path is required", ErrInvalid)
	case !validLogLevel(s.Logging.Level):
		return fmt.Errorf("%w: unknown log level %q (expected debug, info, warn or error)", ErrInvalid, s.Logging.Level)
	}
	return nil
}

// validLogLevel accepts the levels the logger understands; empty means the
// default.
func validLogLevel(level string) bool {
	switch level {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// WriteConfig serializes v to a YAML file at the given path, creating
// parent directories if needed.
func WriteConfig(v interface{}, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}
