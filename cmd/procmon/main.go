// Package main is the entry point for procmon. It runs a command, samples
// its CPU, memory and disk usage until it exits, and leaves a CSV report and
// a chart in the report directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alshdavid/procmon/internal/collector"
	"github.com/alshdavid/procmon/internal/config"
	"github.com/alshdavid/procmon/internal/monitor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("procmon %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[procmon] Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[procmon] %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Debug("Starting procmon",
		zap.String("version", version),
		zap.Strings("command", cfg.Command),
		zap.String("report", cfg.ReportDir))

	res, err := monitor.Run(context.Background(), cfg, collector.NewProcessCollector(), logger)
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "[procmon] %v\n", err)
		os.Exit(1)
	}

	printSummary(os.Stdout, res)
}

// printSummary writes the closing report lines after the child's own output.
func printSummary(w io.Writer, res *monitor.Result) {
	fmt.Fprintf(w, "[procmon] Report:   %s\n", res.Dir)
	fmt.Fprintf(w, "[procmon] Duration: %s\n", durationLabel(res.Duration))
}

// durationLabel prints short runs in milliseconds and long ones in seconds.
func durationLabel(d time.Duration) string {
	if d < 10*time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%ds", int64(d.Seconds()))
}

// initLogger creates a zap logger based on the configuration.
// It writes to stderr (human-readable), so the child's stdout stays clean,
// and optionally to a JSON log file.
func initLogger(cfg *config.Settings) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.WarnLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
