package jobtrack

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gobeacon/pkg/remote"
	"github.com/3leaps/gobeacon/pkg/sched"
	"github.com/3leaps/gobeacon/pkg/sink"
)

// Config configures engine behavior.
type Config struct {
	// PollInterval is the per-job status poll cadence.
	// Default: 5s
	PollInterval time.Duration

	// MaxPollInterval caps the backoff interval after consecutive
	// transport failures.
	// Default: 30s
	MaxPollInterval time.Duration

	// BackoffFactor multiplies the interval after each transport failure.
	// Default: 1.5
	BackoffFactor float64

	// RetireAfter is how long a completed job stays in the registry
	// before automatic removal.
	// Default: 30s
	RetireAfter time.Duration

	// RequestTimeout bounds each remote call issued by the engine.
	// Default: 10s
	RequestTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		MaxPollInterval: 30 * time.Second,
		BackoffFactor:   1.5,
		RetireAfter:     30 * time.Second,
		RequestTimeout:  10 * time.Second,
	}
}

// Engine tracks server-executed jobs from submission through terminal state.
//
// All registry mutation happens inside the engine's own handlers; consumers
// read copies via the snapshot methods. Engine is safe for concurrent use.
type Engine struct {
	api    remote.JobAPI
	snk    sink.Sink
	sched  sched.Scheduler
	logger *zap.Logger
	cfg    Config

	mu      sync.Mutex
	jobs    map[string]*Record
	polls   map[string]sched.Handle
	retires map[string]sched.Handle
	closed  bool
}

// New creates a job tracking engine.
//
// Parameters:
//   - api: remote job service
//   - snk: presentation channel for lifecycle alerts
//   - scheduler: timer source; nil uses the wall clock
//   - logger: nil uses a no-op logger
func New(api remote.JobAPI, snk sink.Sink, scheduler sched.Scheduler, logger *zap.Logger, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = DefaultConfig().MaxPollInterval
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = DefaultConfig().BackoffFactor
	}
	if cfg.RetireAfter <= 0 {
		cfg.RetireAfter = DefaultConfig().RetireAfter
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if scheduler == nil {
		scheduler = sched.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		api:     api,
		snk:     snk,
		sched:   scheduler,
		logger:  logger,
		cfg:     cfg,
		jobs:    make(map[string]*Record),
		polls:   make(map[string]sched.Handle),
		retires: make(map[string]sched.Handle),
	}
}

// Submit uploads a file for processing and starts tracking the returned job.
//
// On success the record enters the registry with an unknown status and the
// first poll is armed immediately (not one interval out). On failure the
// error is surfaced through the sink and returned; no record is created.
func (e *Engine) Submit(ctx context.Context, filename string, body io.Reader, opts remote.SubmitOptions) (string, error) {
	res, err := e.api.Submit(ctx, filename, body, opts)
	if err != nil {
		_ = e.snk.Error(ctx, "Upload failed", fmt.Sprintf("%s could not be submitted", filename), sink.Options{})
		return "", fmt.Errorf("submit %s: %w", filename, err)
	}

	now := e.sched.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", fmt.Errorf("engine is closed")
	}
	// A resubmitted id replaces any stale record wholesale.
	e.stopTimersLocked(res.JobID)
	e.jobs[res.JobID] = &Record{
		JobID:     res.JobID,
		Polling:   true,
		StartTime: now,
	}
	e.scheduleTickLocked(res.JobID, 0, e.cfg.PollInterval)
	e.mu.Unlock()

	e.logger.Info("job submitted",
		zap.String("job_id", res.JobID),
		zap.String("filename", filename))
	_ = e.snk.Info(ctx, "Upload started", fmt.Sprintf("%s queued for processing", filename), sink.Options{Duration: 4 * time.Second})

	return res.JobID, nil
}

// Cancel asks the server to stop a job, then stops the local poll loop and
// optimistically marks the record cancelled.
//
// The client predicted this transition: the loop is stopped, so the
// optimistic status stands until a Retry restarts authoritative polling.
// On failure nothing is mutated and the error is surfaced and returned.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	if err := e.api.Cancel(ctx, jobID); err != nil {
		_ = e.snk.Error(ctx, "Cancel failed", fmt.Sprintf("job %s could not be cancelled", jobID), sink.Options{})
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	name := jobID
	e.mu.Lock()
	if rec, ok := e.jobs[jobID]; ok {
		e.stopPollLocked(jobID)
		rec.Polling = false
		if rec.Status == nil {
			rec.Status = &remote.JobStatus{ID: jobID}
		}
		rec.Status.Status = remote.JobCancelled
		name = rec.filename()
	}
	e.mu.Unlock()

	e.logger.Info("job cancelled", zap.String("job_id", jobID))
	_ = e.snk.Warning(ctx, "Job cancelled", fmt.Sprintf("%s was cancelled", name), sink.Options{Duration: 3 * time.Second})
	return nil
}

// Retry asks the server to re-run a job. On success, if the local loop is
// stopped, the transport error is cleared and polling restarts. On failure
// nothing is mutated and the error is surfaced and returned.
func (e *Engine) Retry(ctx context.Context, jobID string) error {
	if err := e.api.Retry(ctx, jobID); err != nil {
		_ = e.snk.Error(ctx, "Retry failed", fmt.Sprintf("job %s could not be retried", jobID), sink.Options{})
		return fmt.Errorf("retry job %s: %w", jobID, err)
	}

	name := jobID
	e.mu.Lock()
	if rec, ok := e.jobs[jobID]; ok {
		name = rec.filename()
		if !rec.Polling {
			rec.LastError = ""
			// Drop the stale terminal status so the regression guard does
			// not reject the re-run's first authoritative poll.
			rec.Status = nil
			rec.Polling = true
			e.stopRetireLocked(jobID)
			e.scheduleTickLocked(jobID, 0, e.cfg.PollInterval)
		}
	}
	e.mu.Unlock()

	e.logger.Info("job retried", zap.String("job_id", jobID))
	_ = e.snk.Info(ctx, "Job retried", fmt.Sprintf("%s was resubmitted for processing", name), sink.Options{Duration: 4 * time.Second})
	return nil
}

// RemoveJob stops tracking a job and deletes its record.
// Idempotent: safe to call on unknown ids.
func (e *Engine) RemoveJob(jobID string) {
	e.mu.Lock()
	e.stopTimersLocked(jobID)
	if rec, ok := e.jobs[jobID]; ok {
		rec.Polling = false
		delete(e.jobs, jobID)
	}
	e.mu.Unlock()
}

// ClearCompletedJobs removes every record in a terminal state.
// Pending and processing records are untouched.
func (e *Engine) ClearCompletedJobs() {
	e.mu.Lock()
	for id, rec := range e.jobs {
		if rec.Terminal() {
			e.stopTimersLocked(id)
			delete(e.jobs, id)
		}
	}
	e.mu.Unlock()
}

// JobDuration formats how long a job has been running (or ran, once the
// server reports a completion time). Unknown ids return "0s".
func (e *Engine) JobDuration(jobID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.jobs[jobID]
	if !ok {
		return "0s"
	}
	end := e.sched.Now()
	if rec.Status != nil && rec.Status.CompletedAt != nil {
		end = *rec.Status.CompletedAt
	}
	return FormatDuration(end.Sub(rec.StartTime))
}

// Job returns a copy of one record.
func (e *Engine) Job(jobID string) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.jobs[jobID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Jobs returns copies of every record, newest first.
func (e *Engine) Jobs() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Record, 0, len(e.jobs))
	for _, rec := range e.jobs {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// ActiveJobs returns copies of the records not yet in a terminal state,
// newest first.
func (e *Engine) ActiveJobs() []Record {
	all := e.Jobs()
	out := all[:0]
	for _, rec := range all {
		if rec.Active() {
			out = append(out, rec)
		}
	}
	return out
}

// HasActiveJobs reports whether any tracked job is still pending or
// processing.
func (e *Engine) HasActiveJobs() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.jobs {
		if rec.Active() {
			return true
		}
	}
	return false
}

// CompletedCount returns the number of tracked jobs that completed.
func (e *Engine) CompletedCount() int {
	return e.countStatus(remote.JobCompleted)
}

// FailedCount returns the number of tracked jobs that failed.
func (e *Engine) FailedCount() int {
	return e.countStatus(remote.JobFailed)
}

func (e *Engine) countStatus(want remote.JobState) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, rec := range e.jobs {
		if rec.Status != nil && rec.Status.Status == want {
			n++
		}
	}
	return n
}

// Close stops every outstanding timer. The registry is left readable but no
// further polling occurs and Submit is rejected.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for id := range e.polls {
		e.stopPollLocked(id)
	}
	for id := range e.retires {
		e.stopRetireLocked(id)
	}
	for _, rec := range e.jobs {
		rec.Polling = false
	}
	e.mu.Unlock()
}

// scheduleTickLocked arms the single poll timer for jobID. delay is when
// the tick fires; interval is the cadence the tick uses to compute its
// successor, which keeps backoff state local to the restart chain.
func (e *Engine) scheduleTickLocked(jobID string, delay, interval time.Duration) {
	if h, ok := e.polls[jobID]; ok {
		h.Stop()
	}
	e.polls[jobID] = e.sched.AfterFunc(delay, func() {
		e.poll(jobID, interval)
	})
}

func (e *Engine) stopPollLocked(jobID string) {
	if h, ok := e.polls[jobID]; ok {
		h.Stop()
		delete(e.polls, jobID)
	}
}

func (e *Engine) stopRetireLocked(jobID string) {
	if h, ok := e.retires[jobID]; ok {
		h.Stop()
		delete(e.retires, jobID)
	}
}

func (e *Engine) stopTimersLocked(jobID string) {
	e.stopPollLocked(jobID)
	e.stopRetireLocked(jobID)
}

// nextBackoff lengthens the interval after a transport failure,
// capped at MaxPollInterval. Never decreases.
func (e *Engine) nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * e.cfg.BackoffFactor)
	if next > e.cfg.MaxPollInterval {
		next = e.cfg.MaxPollInterval
	}
	if next < cur {
		next = cur
	}
	return next
}

// poll is one tick of a job's poll loop. interval is this tick's cadence.
//
// The loop self-terminates when the record is gone or no longer marked
// polling. That check runs both before the network call and again after it
// resolves, so a cancellation that lands while a call is in flight turns
// the resolved response into a no-op.
func (e *Engine) poll(jobID string, interval time.Duration) {
	e.mu.Lock()
	rec, ok := e.jobs[jobID]
	if !ok || !rec.Polling || e.closed {
		e.stopPollLocked(jobID)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
	status, err := e.api.GetStatus(ctx, jobID)
	cancel()

	if err != nil {
		next := e.nextBackoff(interval)

		e.mu.Lock()
		rec, ok := e.jobs[jobID]
		if !ok || !rec.Polling || e.closed {
			e.stopPollLocked(jobID)
			e.mu.Unlock()
			return
		}
		rec.LastError = err.Error()
		e.scheduleTickLocked(jobID, next, next)
		e.mu.Unlock()

		// Transient transport hiccup: recovered locally, never alerted.
		e.logger.Debug("status poll failed",
			zap.String("job_id", jobID),
			zap.Duration("next_interval", next),
			zap.Error(err))
		return
	}

	e.mu.Lock()
	rec, ok = e.jobs[jobID]
	if !ok || !rec.Polling || e.closed {
		e.stopPollLocked(jobID)
		e.mu.Unlock()
		return
	}

	if rec.Terminal() && !status.Status.Terminal() {
		// Terminal states never regress. Treat as a protocol error:
		// drop the response and end the loop.
		rec.Polling = false
		e.stopPollLocked(jobID)
		e.mu.Unlock()
		e.logger.Warn("ignoring terminal state regression",
			zap.String("job_id", jobID),
			zap.String("reported_status", string(status.Status)))
		return
	}

	rec.LastError = ""
	rec.Status = cloneStatus(status)

	terminal := status.Status.Terminal()
	if terminal {
		rec.Polling = false
		e.stopPollLocked(jobID)
	} else {
		e.scheduleTickLocked(jobID, e.cfg.PollInterval, e.cfg.PollInterval)
	}
	startTime := rec.StartTime
	name := rec.filename()
	e.mu.Unlock()

	bg := context.Background()
	switch status.Status {
	case remote.JobCompleted:
		end := e.sched.Now()
		if status.CompletedAt != nil {
			end = *status.CompletedAt
		}
		elapsed := FormatDuration(end.Sub(startTime))
		e.logger.Info("job completed",
			zap.String("job_id", jobID),
			zap.String("elapsed", elapsed))
		_ = e.snk.Success(bg, "Processing complete", fmt.Sprintf("%s finished in %s", name, elapsed), sink.Options{Persistent: true})
		e.scheduleRetire(jobID)

	case remote.JobFailed:
		msg := status.ErrorMessage
		if msg == "" {
			msg = "processing failed"
		}
		e.logger.Warn("job failed",
			zap.String("job_id", jobID),
			zap.String("error", msg))
		_ = e.snk.Error(bg, "Processing failed", fmt.Sprintf("%s: %s", name, msg), sink.Options{Persistent: true})

	case remote.JobCancelled:
		e.logger.Info("job cancelled by server", zap.String("job_id", jobID))

	default:
		e.logger.Debug("job status",
			zap.String("job_id", jobID),
			zap.String("status", string(status.Status)))
	}
}

// scheduleRetire arms automatic removal of a completed record after the
// grace period.
func (e *Engine) scheduleRetire(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.stopRetireLocked(jobID)
	e.retires[jobID] = e.sched.AfterFunc(e.cfg.RetireAfter, func() {
		e.RemoveJob(jobID)
	})
}
