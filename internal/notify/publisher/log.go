package publisher

import (
	"context"
	"log/slog"

	"zerotrust/internal/notify"
)

// Log stands in for a broker in development. Payloads are not logged.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, e *notify.Event) error {
	l.logger.InfoContext(ctx, "outbound event",
		"event_id", e.ID.String(),
		"event_type", e.Type,
		"aggregate_type", e.AggregateType,
	)
	return nil
}
