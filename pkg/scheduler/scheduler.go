package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pushkit/pushkit/pkg/logger"
	"github.com/pushkit/pushkit/pkg/notification"
	"github.com/pushkit/pushkit/pkg/push"
)

const (
	// DefaultInterval is how often due notifications are polled for.
	DefaultInterval = time.Minute

	// DefaultBatchLimit caps how many due records one tick processes.
	DefaultBatchLimit = 100
)

// Config holds scheduler settings loaded from the environment.
type Config struct {
	Interval   time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	BatchLimit int           `env:"SCHEDULER_BATCH_LIMIT" envDefault:"100"`
}

// Dispatcher delivers one claimed notification record. *push.Manager
// satisfies it.
type Dispatcher interface {
	DispatchRecord(ctx context.Context, rec *notification.Record) (*push.Result, error)
}

// Scheduler polls storage for due notifications and hands them to the
// dispatcher. Dispatch claims each record before any provider call, so
// running several scheduler instances against the same storage is safe:
// only one claims a given record.
type Scheduler struct {
	storage    notification.Storage
	dispatcher Dispatcher
	interval   time.Duration
	limit      int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchLimit caps how many due records a single tick processes.
func WithBatchLimit(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scheduler over the given storage and dispatcher.
func New(storage notification.Storage, dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		storage:    storage,
		dispatcher: dispatcher,
		interval:   DefaultInterval,
		limit:      DefaultBatchLimit,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig creates a scheduler configured from the environment.
func NewFromConfig(cfg Config, storage notification.Storage, dispatcher Dispatcher, opts ...Option) *Scheduler {
	base := []Option{WithInterval(cfg.Interval), WithBatchLimit(cfg.BatchLimit)}
	return New(storage, dispatcher, append(base, opts...)...)
}

// Start runs the polling loop until the context is cancelled. The first tick
// fires immediately so a restart picks up overdue work without waiting a
// full interval. Always returns the context's error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("batch_limit", s.limit),
	)

	if err := s.RunOnce(ctx); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "scheduler tick failed", logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.LogAttrs(ctx, slog.LevelInfo, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelError, "scheduler tick failed", logger.Error(err))
			}
		}
	}
}

// RunOnce performs a single tick: list due records and dispatch each one.
// A record failing to dispatch is logged and does not abort the tick.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	due, err := s.storage.ListDue(ctx, s.now(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to list due notifications: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rec := &due[i]
		if len(rec.Targets) == 0 {
			// Targetless records stay pending until cancelled.
			continue
		}
		if _, err := s.dispatcher.DispatchRecord(ctx, rec); err != nil {
			if errors.Is(err, notification.ErrAlreadyDispatched) {
				// Another instance won the claim between listing and
				// dispatching.
				continue
			}
			s.logger.LogAttrs(ctx, slog.LevelError, "failed to dispatch due notification",
				logger.NotificationID(rec.ID),
				logger.Error(err),
			)
		}
	}
	return nil
}
