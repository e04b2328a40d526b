package sink

import (
	"context"
	"sync"
)

// Alert is one captured MemorySink emission.
type Alert struct {
	Kind    Kind
	Title   string
	Message string
	Options Options
}

// MemorySink captures alerts in memory.
//
// It exists for tests and for UIs that poll a queue instead of receiving
// callbacks. Safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	alerts []Alert
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Success(ctx context.Context, title, message string, opts Options) error {
	return s.record(KindSuccess, title, message, opts)
}

func (s *MemorySink) Error(ctx context.Context, title, message string, opts Options) error {
	return s.record(KindError, title, message, opts)
}

func (s *MemorySink) Warning(ctx context.Context, title, message string, opts Options) error {
	return s.record(KindWarning, title, message, opts)
}

func (s *MemorySink) Info(ctx context.Context, title, message string, opts Options) error {
	return s.record(KindInfo, title, message, opts)
}

func (s *MemorySink) record(kind Kind, title, message string, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, Alert{Kind: kind, Title: title, Message: message, Options: opts})
	return nil
}

// Alerts returns a copy of every captured alert in emission order.
func (s *MemorySink) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ByKind returns captured alerts of one kind, in emission order.
func (s *MemorySink) ByKind(kind Kind) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Alert
	for _, a := range s.alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Reset discards captured alerts.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
}

var _ Sink = (*MemorySink)(nil)
