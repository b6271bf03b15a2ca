// Package launcher starts the monitored command, hands its pid to the
// sampler and brackets the run with zero-valued start and end rows.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/alshdavid/procmon/internal/collector"
	"github.com/alshdavid/procmon/internal/models"
	"github.com/alshdavid/procmon/internal/platform"
	"github.com/alshdavid/procmon/internal/sampler"
)

// ErrSpawnFailed is returned when the target process could not be started
// or, in attach mode, does not exist.
var ErrSpawnFailed = errors.New("failed to start process")

// noExitCode is reported when the exit status of the process is unknown.
const noExitCode = -1

// Launcher runs one command, or attaches to one existing process, for the
// duration of a run.
type Launcher struct {
	command  []string
	attach   int32
	interval time.Duration
	sink     sampler.RowWriter
	provider collector.Provider
	logger   *zap.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// SamplerDone, when set, holds back the end bracket until it is closed,
	// so that row is always the last one in the report.
	SamplerDone <-chan struct{}

	pid      int32
	started  time.Time
	exitCode int
}

// New creates a Launcher for command. If attachPID is non-zero the command
// is ignored and the launcher follows that process instead; provider and
// interval are only used in that mode, to detect its exit.
func New(command []string, attachPID int32, interval time.Duration, sink sampler.RowWriter, provider collector.Provider, logger *zap.Logger) *Launcher {
	return &Launcher{
		command:  command,
		attach:   attachPID,
		interval: interval,
		sink:     sink,
		provider: provider,
		logger:   logger.Named("launcher"),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		exitCode: noExitCode,
	}
}

// PID returns the monitored process id, or 0 if none was started.
func (l *Launcher) PID() int32 { return l.pid }

// StartedAt returns the start instant of the run, or the zero time if no
// process was started.
func (l *Launcher) StartedAt() time.Time { return l.started }

// ExitCode returns the exit code of the child, or -1 when unknown (attach
// mode, killed by a signal, or never started).
func (l *Launcher) ExitCode() int { return l.exitCode }

// Launch writes the start bracket row, starts the process, sends its pid and
// start instant on handoff exactly once, waits for the process to exit and
// writes the end bracket row. handoff is always closed on return, without a
// value if no process was started. The returned duration is the time
// between the two bracket rows.
//
// Cancelling ctx kills the child; it is only cancelled when the run aborts.
func (l *Launcher) Launch(ctx context.Context, handoff chan<- models.Start) (time.Duration, error) {
	defer close(handoff)

	if l.attach != 0 {
		return l.follow(ctx, handoff)
	}
	if len(l.command) == 0 {
		return 0, fmt.Errorf("%w: empty command", ErrSpawnFailed)
	}

	cmd := exec.CommandContext(ctx, l.command[0], l.command[1:]...)
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	relay := platform.NewRelay(l.logger)
	defer relay.Stop()

	start := time.Now()
	if err := l.sink.Write(models.Bracket(0)); err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrSpawnFailed, l.command[0], err)
	}
	l.pid = int32(cmd.Process.Pid)
	l.started = start
	relay.Attach(cmd.Process.Pid)
	handoff <- models.Start{PID: l.pid, At: start}

	l.logger.Info("Process started",
		zap.Int32("pid", l.pid),
		zap.Strings("command", l.command))

	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	l.exitCode = cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		l.logger.Info("Process exited", zap.Duration("elapsed", elapsed))
	case errors.As(waitErr, &exitErr):
		l.logger.Warn("Process exited with failure",
			zap.Int("exit_code", l.exitCode),
			zap.String("state", exitErr.String()),
			zap.Duration("elapsed", elapsed))
	default:
		return elapsed, fmt.Errorf("waiting for process %d: %w", l.pid, waitErr)
	}

	return elapsed, l.closeRun(ctx, elapsed)
}

// closeRun writes the end bracket once the sampler has stopped.
func (l *Launcher) closeRun(ctx context.Context, elapsed time.Duration) error {
	if l.SamplerDone != nil {
		select {
		case <-l.SamplerDone:
		case <-ctx.Done():
		}
	}
	return l.sink.Write(models.Bracket(elapsed))
}

// follow is Launch for an existing process: there is no child to wait on,
// so its exit is detected by polling the provider every interval.
func (l *Launcher) follow(ctx context.Context, handoff chan<- models.Start) (time.Duration, error) {
	log := l.logger.With(zap.Int32("pid", l.attach))
	if !l.provider.Refresh(ctx, l.attach) {
		return 0, fmt.Errorf("%w: no process with pid %d", ErrSpawnFailed, l.attach)
	}

	start := time.Now()
	if err := l.sink.Write(models.Bracket(0)); err != nil {
		return 0, err
	}
	l.pid = l.attach
	l.started = start
	handoff <- models.Start{PID: l.pid, At: start}
	log.Info("Attached to process")

	for l.provider.Refresh(ctx, l.pid) {
		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-time.After(l.interval):
		}
	}
	elapsed := time.Since(start)
	log.Info("Process exited", zap.Duration("elapsed", elapsed))

	return elapsed, l.closeRun(ctx, elapsed)
}
