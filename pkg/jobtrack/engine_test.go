package jobtrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobeacon/pkg/remote"
	"github.com/3leaps/gobeacon/pkg/sched"
	"github.com/3leaps/gobeacon/pkg/sink"
)

type fakeJobAPI struct {
	mu          sync.Mutex
	submitID    string
	submitErr   error
	cancelErr   error
	retryErr    error
	statusFn    func(call int, jobID string) (*remote.JobStatus, error)
	statusCalls int
}

func (f *fakeJobAPI) Submit(ctx context.Context, filename string, body io.Reader, opts remote.SubmitOptions) (*remote.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	id := f.submitID
	if id == "" {
		id = "job-1"
	}
	return &remote.SubmitResult{JobID: id}, nil
}

func (f *fakeJobAPI) GetStatus(ctx context.Context, jobID string) (*remote.JobStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	fn := f.statusFn
	f.mu.Unlock()
	if fn == nil {
		return &remote.JobStatus{ID: jobID, Status: remote.JobProcessing}, nil
	}
	return fn(call, jobID)
}

func (f *fakeJobAPI) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelErr
}

func (f *fakeJobAPI) Retry(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retryErr
}

func (f *fakeJobAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeJobAPI) setStatusFn(fn func(call int, jobID string) (*remote.JobStatus, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = fn
}

func newTestEngine(t *testing.T) (*Engine, *fakeJobAPI, *sink.MemorySink, *sched.Manual) {
	t.Helper()
	api := &fakeJobAPI{}
	snk := sink.NewMemorySink()
	clock := sched.NewManual(time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC))
	e := New(api, snk, clock, nil, DefaultConfig())
	t.Cleanup(e.Close)
	return e, api, snk, clock
}

func submitStatic(t *testing.T, e *Engine) string {
	t.Helper()
	id, err := e.Submit(context.Background(), "report.csv", strings.NewReader("data"), remote.SubmitOptions{})
	require.NoError(t, err)
	return id
}

func TestSubmit_CreatesRecordAndPollsImmediately(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)

	id := submitStatic(t, e)

	rec, ok := e.Job(id)
	require.True(t, ok)
	assert.True(t, rec.Polling)
	assert.Nil(t, rec.Status)
	assert.True(t, e.HasActiveJobs())

	infos := snk.ByKind(sink.KindInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "Upload started", infos[0].Title)

	// First poll is armed at zero delay, not one interval out.
	clock.Advance(0)
	assert.Equal(t, 1, api.calls())

	rec, _ = e.Job(id)
	require.NotNil(t, rec.Status)
	assert.Equal(t, remote.JobProcessing, rec.Status.Status)

	clock.Advance(5 * time.Second)
	assert.Equal(t, 2, api.calls())
}

func TestSubmit_UniqueIDsOneRecordEach(t *testing.T) {
	e, api, _, _ := newTestEngine(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		api.mu.Lock()
		api.submitID = fmt.Sprintf("job-%d", i)
		api.mu.Unlock()
		id := submitStatic(t, e)
		require.False(t, seen[id], "duplicate job id %s", id)
		seen[id] = true
	}
	assert.Len(t, e.Jobs(), 5)
}

func TestSubmit_FailureCreatesNoRecord(t *testing.T) {
	e, api, snk, _ := newTestEngine(t)
	api.submitErr = errors.New("boom")

	_, err := e.Submit(context.Background(), "report.csv", strings.NewReader("data"), remote.SubmitOptions{})
	require.Error(t, err)

	assert.Empty(t, e.Jobs())
	require.Len(t, snk.ByKind(sink.KindError), 1)
}

func TestPoll_CompletedScenario(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)
	start := clock.Now()
	completedAt := start.Add(3 * time.Second)

	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		if call == 1 {
			return &remote.JobStatus{ID: jobID, Status: remote.JobProcessing, Filename: "report.csv"}, nil
		}
		return &remote.JobStatus{ID: jobID, Status: remote.JobCompleted, Filename: "report.csv", CompletedAt: &completedAt}, nil
	})

	id := submitStatic(t, e)
	clock.Advance(0)               // processing
	clock.Advance(5 * time.Second) // completed

	successes := snk.ByKind(sink.KindSuccess)
	require.Len(t, successes, 1)
	assert.Contains(t, successes[0].Message, "3s")
	assert.True(t, successes[0].Options.Persistent)

	assert.Equal(t, "3s", e.JobDuration(id))
	assert.False(t, e.HasActiveJobs())
	assert.Equal(t, 1, e.CompletedCount())

	// Terminal state ends polling.
	calls := api.calls()
	clock.Advance(20 * time.Second)
	assert.Equal(t, calls, api.calls())

	// Record survives the grace period, then is retired.
	_, ok := e.Job(id)
	assert.True(t, ok, "record should remain during the grace window")
	clock.Advance(15 * time.Second) // past completion + 30s
	_, ok = e.Job(id)
	assert.False(t, ok, "record should be retired after the grace window")

	// Exactly one success alert overall.
	assert.Len(t, snk.ByKind(sink.KindSuccess), 1)
}

func TestPoll_FailedStatusSinksPersistentError(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)

	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		return &remote.JobStatus{ID: jobID, Status: remote.JobFailed, Filename: "report.csv", ErrorMessage: "bad input"}, nil
	})

	submitStatic(t, e)
	clock.Advance(0)

	errsAlerts := snk.ByKind(sink.KindError)
	require.Len(t, errsAlerts, 1)
	assert.Contains(t, errsAlerts[0].Message, "report.csv")
	assert.Contains(t, errsAlerts[0].Message, "bad input")
	assert.True(t, errsAlerts[0].Options.Persistent)
	assert.Equal(t, 1, e.FailedCount())

	// Failed records are not auto-retired.
	clock.Advance(time.Minute)
	assert.Len(t, e.Jobs(), 1)
}

func TestBackoff_IntervalSequence(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	assert.Equal(t, 7500*time.Millisecond, e.nextBackoff(5000*time.Millisecond))
	assert.Equal(t, 11250*time.Millisecond, e.nextBackoff(7500*time.Millisecond))
	assert.Equal(t, 16875*time.Millisecond, e.nextBackoff(11250*time.Millisecond))
	assert.Equal(t, 30*time.Second, e.nextBackoff(25*time.Second))
	assert.Equal(t, 30*time.Second, e.nextBackoff(30*time.Second))
}

func TestBackoff_RetriesIndefinitelyWithGrowingGaps(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)

	var callTimes []time.Time
	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		callTimes = append(callTimes, clock.Now())
		return nil, errors.New("connection refused")
	})

	id := submitStatic(t, e)
	clock.Advance(0)
	clock.Advance(2 * time.Minute)

	require.GreaterOrEqual(t, len(callTimes), 4)

	// Gaps grow by 1.5x from the base cadence: 7.5s, 11.25s, 16.875s, ...
	gap1 := callTimes[1].Sub(callTimes[0])
	gap2 := callTimes[2].Sub(callTimes[1])
	gap3 := callTimes[3].Sub(callTimes[2])
	assert.Equal(t, 7500*time.Millisecond, gap1)
	assert.Equal(t, 11250*time.Millisecond, gap2)
	assert.Equal(t, 16875*time.Millisecond, gap3)

	// The record carries the transport error, but no alert is raised.
	rec, ok := e.Job(id)
	require.True(t, ok)
	assert.Contains(t, rec.LastError, "connection refused")
	assert.True(t, rec.Polling)
	assert.Empty(t, snk.ByKind(sink.KindError))
}

func TestBackoff_SuccessResetsCadence(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	var callTimes []time.Time
	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		callTimes = append(callTimes, clock.Now())
		if call <= 2 {
			return nil, errors.New("timeout")
		}
		return &remote.JobStatus{ID: jobID, Status: remote.JobProcessing}, nil
	})

	id := submitStatic(t, e)
	clock.Advance(0)
	clock.Advance(time.Minute)

	require.GreaterOrEqual(t, len(callTimes), 4)
	// After the first success (call 3) the cadence returns to the base 5s.
	gap := callTimes[3].Sub(callTimes[2])
	assert.Equal(t, 5*time.Second, gap)

	rec, _ := e.Job(id)
	assert.Empty(t, rec.LastError, "transport error cleared on success")
}

func TestCancel_OptimisticTransitionAndLoopStop(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)

	id := submitStatic(t, e)
	clock.Advance(0)
	calls := api.calls()

	require.NoError(t, e.Cancel(context.Background(), id))

	rec, ok := e.Job(id)
	require.True(t, ok)
	assert.False(t, rec.Polling)
	require.NotNil(t, rec.Status)
	assert.Equal(t, remote.JobCancelled, rec.Status.Status)

	warnings := snk.ByKind(sink.KindWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Job cancelled", warnings[0].Title)

	// No further ticks after cancellation.
	clock.Advance(time.Minute)
	assert.Equal(t, calls, api.calls())
}

func TestCancel_FailureMutatesNothing(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)
	api.cancelErr = errors.New("denied")

	id := submitStatic(t, e)
	clock.Advance(0)

	err := e.Cancel(context.Background(), id)
	require.Error(t, err)

	rec, _ := e.Job(id)
	assert.True(t, rec.Polling)
	require.NotNil(t, rec.Status)
	assert.Equal(t, remote.JobProcessing, rec.Status.Status)
	require.Len(t, snk.ByKind(sink.KindError), 1)
}

func TestCancel_InFlightResponseIsNoOp(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)

	id := submitStatic(t, e)

	// The poll resolves after the record has been removed: the tick must
	// re-check on resume and drop the response.
	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		e.RemoveJob(jobID)
		return &remote.JobStatus{ID: jobID, Status: remote.JobCompleted}, nil
	})
	clock.Advance(0)

	_, ok := e.Job(id)
	assert.False(t, ok)
	assert.Empty(t, snk.ByKind(sink.KindSuccess), "resolved call for a removed job must not alert")
}

func TestRetry_RestartsStoppedLoop(t *testing.T) {
	e, api, snk, clock := newTestEngine(t)

	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		if call == 1 {
			return &remote.JobStatus{ID: jobID, Status: remote.JobFailed, ErrorMessage: "oom"}, nil
		}
		return &remote.JobStatus{ID: jobID, Status: remote.JobProcessing}, nil
	})

	id := submitStatic(t, e)
	clock.Advance(0)

	rec, _ := e.Job(id)
	require.False(t, rec.Polling, "loop stops on terminal status")

	require.NoError(t, e.Retry(context.Background(), id))

	rec, _ = e.Job(id)
	assert.True(t, rec.Polling)
	assert.Empty(t, rec.LastError)

	clock.Advance(0)
	rec, _ = e.Job(id)
	require.NotNil(t, rec.Status)
	assert.Equal(t, remote.JobProcessing, rec.Status.Status)

	infos := snk.ByKind(sink.KindInfo)
	var retried bool
	for _, a := range infos {
		if a.Title == "Job retried" {
			retried = true
		}
	}
	assert.True(t, retried)
}

func TestRetry_FailurePropagatesWithoutMutation(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		return &remote.JobStatus{ID: jobID, Status: remote.JobFailed}, nil
	})
	id := submitStatic(t, e)
	clock.Advance(0)

	api.retryErr = errors.New("denied")
	require.Error(t, e.Retry(context.Background(), id))

	rec, _ := e.Job(id)
	assert.False(t, rec.Polling)
}

func TestRemoveJob_Idempotent(t *testing.T) {
	e, _, _, clock := newTestEngine(t)

	id := submitStatic(t, e)
	clock.Advance(0)

	e.RemoveJob(id)
	e.RemoveJob(id)
	e.RemoveJob("never-existed")

	assert.Empty(t, e.Jobs())
	assert.Zero(t, clock.Pending(), "removal must cancel the poll timer")
}

func TestClearCompletedJobs_LeavesActiveRecords(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	states := map[string]remote.JobState{
		"job-done":   remote.JobCompleted,
		"job-dead":   remote.JobFailed,
		"job-gone":   remote.JobCancelled,
		"job-active": remote.JobProcessing,
	}
	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		return &remote.JobStatus{ID: jobID, Status: states[jobID]}, nil
	})

	for id := range states {
		api.mu.Lock()
		api.submitID = id
		api.mu.Unlock()
		submitStatic(t, e)
	}
	clock.Advance(0)

	e.ClearCompletedJobs()

	jobs := e.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-active", jobs[0].JobID)
}

func TestJobDuration(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	assert.Equal(t, "0s", e.JobDuration("unknown"))

	id := submitStatic(t, e)
	clock.Advance(0)

	clock.Advance(30 * time.Second)
	assert.Equal(t, "30s", e.JobDuration(id))

	clock.Advance(35 * time.Second)
	assert.Equal(t, "1m 5s", e.JobDuration(id))

	// Once the server reports a completion time, it wins over "now".
	start := clock.Now().Add(-65 * time.Second)
	completedAt := start.Add(3 * time.Second)
	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		return &remote.JobStatus{ID: jobID, Status: remote.JobCompleted, CompletedAt: &completedAt}, nil
	})
	clock.Advance(5 * time.Second)
	assert.Equal(t, "3s", e.JobDuration(id))
}

func TestPoll_TerminalRegressionIgnored(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		return &remote.JobStatus{ID: jobID, Status: remote.JobProcessing}, nil
	})
	id := submitStatic(t, e)

	// Force the in-flight race: the record turns terminal while a poll
	// carrying a non-terminal payload is outstanding.
	e.mu.Lock()
	rec := e.jobs[id]
	rec.Status = &remote.JobStatus{ID: id, Status: remote.JobCompleted}
	e.mu.Unlock()

	clock.Advance(0)

	got, ok := e.Job(id)
	require.True(t, ok)
	require.NotNil(t, got.Status)
	assert.Equal(t, remote.JobCompleted, got.Status.Status, "terminal state must not regress")
	assert.False(t, got.Polling, "loop ends after a protocol anomaly on a terminal record")
}

func TestClose_StopsAllTimers(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	for i := 0; i < 3; i++ {
		api.mu.Lock()
		api.submitID = fmt.Sprintf("job-%d", i)
		api.mu.Unlock()
		submitStatic(t, e)
	}

	e.Close()

	assert.Zero(t, clock.Pending(), "close must stop every outstanding timer")
	calls := api.calls()
	clock.Advance(time.Minute)
	assert.Equal(t, calls, api.calls())

	_, err := e.Submit(context.Background(), "late.csv", strings.NewReader("x"), remote.SubmitOptions{})
	assert.Error(t, err)
}

func TestJobs_SnapshotsAreCopies(t *testing.T) {
	e, api, _, clock := newTestEngine(t)

	api.setStatusFn(func(call int, jobID string) (*remote.JobStatus, error) {
		return &remote.JobStatus{ID: jobID, Status: remote.JobProcessing, Filename: "report.csv"}, nil
	})
	id := submitStatic(t, e)
	clock.Advance(0)

	snap, _ := e.Job(id)
	snap.Status.Status = remote.JobFailed
	snap.Status.Filename = "tampered"

	fresh, _ := e.Job(id)
	assert.Equal(t, remote.JobProcessing, fresh.Status.Status)
	assert.Equal(t, "report.csv", fresh.Status.Filename)
}
