// Package sink defines the presentation channel that turns engine events
// into user-visible alerts.
//
// The engines emit through a Sink and never render anything themselves;
// the surrounding application decides what a "success" or "error" alert
// looks like. Implementations must be safe for concurrent use: the job
// tracking loops and the notification poller share one Sink.
package sink

import (
	"context"
	"time"
)

// Kind is the presentation channel for an alert.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Options controls alert lifetime.
type Options struct {
	// Persistent alerts survive automatic clearing and must be dismissed
	// by the user. Duration is ignored when set.
	Persistent bool

	// Duration is how long a non-persistent alert stays visible.
	// Zero lets the presentation layer pick its default.
	Duration time.Duration
}

// Sink accepts alerts for presentation.
type Sink interface {
	// Success emits a success alert.
	Success(ctx context.Context, title, message string, opts Options) error

	// Error emits an error alert.
	Error(ctx context.Context, title, message string, opts Options) error

	// Warning emits a warning alert.
	Warning(ctx context.Context, title, message string, opts Options) error

	// Info emits an info alert.
	Info(ctx context.Context, title, message string, opts Options) error
}
