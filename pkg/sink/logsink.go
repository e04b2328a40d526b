package sink

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes alerts to a zap logger.
//
// It is the default presentation channel for headless runs: success and
// info alerts log at info level, warnings at warn, errors at error.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink. A nil logger falls back to a no-op logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Success(ctx context.Context, title, message string, opts Options) error {
	s.logger.Info(title, s.fields(KindSuccess, message, opts)...)
	return nil
}

func (s *LogSink) Error(ctx context.Context, title, message string, opts Options) error {
	s.logger.Error(title, s.fields(KindError, message, opts)...)
	return nil
}

func (s *LogSink) Warning(ctx context.Context, title, message string, opts Options) error {
	s.logger.Warn(title, s.fields(KindWarning, message, opts)...)
	return nil
}

func (s *LogSink) Info(ctx context.Context, title, message string, opts Options) error {
	s.logger.Info(title, s.fields(KindInfo, message, opts)...)
	return nil
}

func (s *LogSink) fields(kind Kind, message string, opts Options) []zap.Field {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("message", message),
	}
	if opts.Persistent {
		fields = append(fields, zap.Bool("persistent", true))
	} else if opts.Duration > 0 {
		fields = append(fields, zap.Duration("duration", opts.Duration))
	}
	return fields
}

var _ Sink = (*LogSink)(nil)
