// Package notify implements the notification polling and delivery engine.
//
// A single shared poller fetches unread counts and notification payloads on
// an adaptive cadence, merges them into a deduplicated in-memory store, and
// forwards freshly-seen presentable notifications to a sink.Sink exactly
// once. The job tracking loops and this poller share the sink but no state.
package notify

import "strings"

// Well-known notification types emitted by the job service.
const (
	TypeJobCompleted = "job_completed"
	TypeJobFailed    = "job_failed"
	TypeJobRetry     = "job_retry"
	TypeJobCancelled = "job_cancelled"
)

// jobTypePrefix marks notification types that relate to job lifecycle.
const jobTypePrefix = "job_"

// isJobType reports whether a notification type relates to job lifecycle.
func isJobType(t string) bool {
	return strings.HasPrefix(t, jobTypePrefix)
}

// suggestsActiveJobs reports whether a notification type hints that jobs
// are still running client-side. Terminal lifecycle types do not: they mark
// work ending, not work in progress. This is a best-effort heuristic used
// to pick the next poll cadence, not a contract.
func suggestsActiveJobs(t string) bool {
	if !isJobType(t) {
		return false
	}
	switch t {
	case TypeJobCompleted, TypeJobFailed, TypeJobCancelled:
		return false
	}
	return true
}
