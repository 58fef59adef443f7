package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"zerotrust/internal/notify/metrics"
)

// Publisher delivers an event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 10
)

// Worker drains the outbox. Events that keep failing stay in the outbox with
// their attempt count and last error, and are skipped once maxAttempts is hit.
type Worker struct {
	outbox      Outbox
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(outbox Outbox, publisher Publisher, opts ...WorkerOption) (*Worker, error) {
	if outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	w := &Worker{
		outbox:      outbox,
		publisher:   publisher,
		interval:    defaultPollInterval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run drains on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch of pending events in creation order and returns
// how many were delivered.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	pending, err := w.outbox.Pending(ctx, w.batchSize, w.maxAttempts)
	if err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.SetBatchSize(len(pending))
	}
	delivered := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		b := backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxElapsedTime(2*time.Second),
		)
		err := backoff.Retry(func() error {
			return w.publisher.Publish(ctx, e)
		}, backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx))
		if err != nil {
			w.logger.WarnContext(ctx, "outbox event not delivered",
				"event_id", e.ID.String(),
				"event_type", e.Type,
				"attempts", e.Attempts+1,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncrementPublishFailed(string(e.Type))
			}
			if markErr := w.outbox.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				return delivered, markErr
			}
			continue
		}
		if err := w.outbox.MarkPublished(ctx, e.ID, w.now()); err != nil {
			return delivered, err
		}
		if w.metrics != nil {
			w.metrics.IncrementPublished(string(e.Type))
		}
		delivered++
	}
	return delivered, nil
}
