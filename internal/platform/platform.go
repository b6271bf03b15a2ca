// Package platform provides OS-specific process control that gopsutil does
// not cover: keeping procmon alive while the monitored child handles
// terminal interrupts, and relaying termination signals to that child.
package platform

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Relay intercepts signals addressed to procmon for the lifetime of a run.
// Interrupts are swallowed, because the child shares the terminal's
// foreground process group and receives them directly. Termination signals
// are forwarded to the attached child so the run still ends through the
// child's exit.
type Relay struct {
	logger *zap.Logger
	sigCh  chan os.Signal
	pid    atomic.Int64
	done   chan struct{}
	once   sync.Once
}

// NewRelay starts intercepting signals. Call Stop when the run is over.
func NewRelay(logger *zap.Logger) *Relay {
	r := &Relay{
		logger: logger.Named("signals"),
		sigCh:  make(chan os.Signal, 4),
		done:   make(chan struct{}),
	}
	signal.Notify(r.sigCh, watchedSignals...)
	go r.loop()
	return r
}

// Attach sets the process that receives forwarded signals.
func (r *Relay) Attach(pid int) { r.pid.Store(int64(pid)) }

// Stop restores default signal handling.
func (r *Relay) Stop() {
	r.once.Do(func() {
		signal.Stop(r.sigCh)
		close(r.done)
	})
}

func (r *Relay) loop() {
	for {
		select {
		case <-r.done:
			return
		case sig := <-r.sigCh:
			pid := int(r.pid.Load())
			if !forwarded(sig) || pid == 0 {
				r.logger.Info("Signal received, waiting for the monitored process to exit",
					zap.String("signal", sig.String()))
				continue
			}
			if err := forward(pid, sig); err != nil {
				r.logger.Warn("Failed to forward signal",
					zap.String("signal", sig.String()),
					zap.Int("pid", pid),
					zap.Error(err))
				continue
			}
			r.logger.Info("Forwarded signal to monitored process",
				zap.String("signal", sig.String()),
				zap.Int("pid", pid))
		}
	}
}
