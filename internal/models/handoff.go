package models

import "time"

// Start is the single message passed from the launcher to the sampler once
// the monitored process exists.
type Start struct {
	PID int32
	At  time.Time // captured before the start bracket row was written
}

// NewHandoff returns the one-shot channel carrying the Start message. The
// launcher sends at most once and then closes it; a closed channel with no
// value means no process was started.
func NewHandoff() chan Start {
	return make(chan Start, 1)
}
