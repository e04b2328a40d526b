// Package jobtrack implements the client-side job tracking engine.
//
// The engine registers submitted jobs, polls their status on a per-job
// cadence with exponential backoff on transport failures, walks each job
// through its lifecycle, and retires completed jobs after a grace period.
// Lifecycle events are emitted through a sink.Sink; the registry itself is
// the single source of truth for job state and is mutated only by the
// engine's own tick and action handlers.
package jobtrack

import (
	"fmt"
	"time"

	"github.com/3leaps/gobeacon/pkg/remote"
)

// Record is the tracked state for one submitted job.
//
// Status is nil until the first successful poll. LastError holds the most
// recent polling-transport error; it is distinct from a job-failure status
// and is cleared on the next successful poll.
type Record struct {
	JobID     string            `json:"job_id"`
	Status    *remote.JobStatus `json:"status,omitempty"`
	Polling   bool              `json:"polling"`
	LastError string            `json:"last_error,omitempty"`
	StartTime time.Time         `json:"start_time"`
}

// Terminal reports whether the record has reached a terminal status.
func (r *Record) Terminal() bool {
	return r.Status != nil && r.Status.Status.Terminal()
}

// Active reports whether the job is still pending or processing.
// A record with no status yet counts as active.
func (r *Record) Active() bool {
	return !r.Terminal()
}

// filename returns the best available display name for the job.
func (r *Record) filename() string {
	if r.Status != nil && r.Status.Filename != "" {
		return r.Status.Filename
	}
	return r.JobID
}

// clone returns a deep copy safe to hand outside the engine.
func (r *Record) clone() Record {
	out := *r
	out.Status = cloneStatus(r.Status)
	return out
}

func cloneStatus(s *remote.JobStatus) *remote.JobStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// FormatDuration renders an elapsed duration the way the UI shows job
// runtimes: whole seconds under a minute ("30s"), minutes and seconds at or
// above it ("1m 5s"), with a trailing zero-second component omitted ("2m").
// Negative durations render as "0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	m := secs / 60
	s := secs % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
