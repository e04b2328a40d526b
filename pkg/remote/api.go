// Package remote defines the transport contracts for the job and
// notification services.
//
// The engines depend only on the JobAPI and NotificationAPI interfaces;
// the HTTP clients in this package are one implementation. Implementations
// must be safe for concurrent use: each tracked job polls from its own
// timer goroutine.
package remote

import (
	"context"
	"io"
	"time"
)

// JobState is the server-reported lifecycle state of a job.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

// Terminal reports whether the state ends polling. A job never leaves a
// terminal state; a server response that says otherwise is a protocol error.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobStatus is one status snapshot for a submitted job.
type JobStatus struct {
	ID           string     `json:"id"`
	Status       JobState   `json:"status"`
	Filename     string     `json:"filename"`
	Progress     *int       `json:"progress,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// SubmitOptions carries optional submission parameters.
type SubmitOptions struct {
	// Priority is a server-interpreted scheduling hint (e.g. "high").
	Priority string

	// WebhookURL is called by the server when the job reaches a terminal
	// state. Optional.
	WebhookURL string
}

// SubmitResult is the server's acknowledgement of a submission.
type SubmitResult struct {
	JobID string `json:"job_id"`
}

// JobAPI is the remote job execution service.
type JobAPI interface {
	// Submit uploads a file for processing and returns the assigned job id.
	Submit(ctx context.Context, filename string, body io.Reader, opts SubmitOptions) (*SubmitResult, error)

	// GetStatus fetches the current status of a job.
	// Returns ErrJobNotFound if the server no longer knows the id.
	GetStatus(ctx context.Context, jobID string) (*JobStatus, error)

	// Cancel asks the server to stop a job.
	Cancel(ctx context.Context, jobID string) error

	// Retry asks the server to re-run a failed job under the same id.
	Retry(ctx context.Context, jobID string) error
}

// Notification is one server-emitted notification event.
//
// ID is the dedup key: the client-side store never holds two records with
// the same id.
type Notification struct {
	ID           string     `json:"id"`
	JobID        string     `json:"job_id,omitempty"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	IsRead       bool       `json:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	IsPersistent bool       `json:"is_persistent"`
	CreatedAt    time.Time  `json:"created_at"`
}

// UnreadCount is the server's unread-notification counter.
type UnreadCount struct {
	Count int `json:"count"`
}

// ListOptions configures a GetNotifications call.
type ListOptions struct {
	// UnreadOnly restricts results to unread notifications.
	UnreadOnly bool

	// Limit caps the number of notifications returned.
	// Zero uses the server default.
	Limit int

	// Offset skips the first N notifications for paging.
	Offset int
}

// NotificationList is a page of notifications plus authoritative counters.
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	TotalCount    int            `json:"total_count"`
}

// NotificationAPI is the remote notification service.
type NotificationAPI interface {
	// GetUnreadCount fetches the unread counter. The server caches this
	// endpoint briefly, so callers may poll it at their own cadence.
	GetUnreadCount(ctx context.Context) (*UnreadCount, error)

	// GetNotifications fetches a page of notifications.
	GetNotifications(ctx context.Context, opts ListOptions) (*NotificationList, error)

	// MarkRead marks one notification as read.
	MarkRead(ctx context.Context, id string) error

	// MarkManyRead marks a batch of notifications as read.
	MarkManyRead(ctx context.Context, ids []string) error

	// MarkAllRead marks every notification as read.
	MarkAllRead(ctx context.Context) error
}
