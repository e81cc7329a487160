package sink

import (
	"context"
	"log/slog"

	"github.com/mklimuk/biosignals"
)

// Log reports every sample as a structured log record.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog logs with the given logger, or the default one when nil.
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, level: level}
}

func (l *Log) Write(ctx context.Context, sample biosignals.Sample) error {
	attrs := make([]slog.Attr, 0, len(sample.Fields)+2)
	attrs = append(attrs, slog.String("device", sample.Device), slog.String("time", FormatTime(sample.Time)))
	for _, f := range sample.Fields {
		attrs = append(attrs, slog.Float64(f.Name, f.Value))
	}
	l.logger.LogAttrs(ctx, l.level, "sample", attrs...)
	return nil
}

// Multi delivers samples to every sink in order and stops at the first error.
type Multi []interface {
	Write(ctx context.Context, sample biosignals.Sample) error
}

func (m Multi) Write(ctx context.Context, sample biosignals.Sample) error {
	for _, s := range m {
		if err := s.Write(ctx, sample); err != nil {
			return err
		}
	}
	return nil
}
