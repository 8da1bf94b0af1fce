package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSize is the number of requests processed per batch.
	DefaultSize = 500
	// DefaultCooldown is the pause between batches, backpressure against
	// downstream provider rate limits.
	DefaultCooldown = time.Second
)

// Config is the environment-driven coordinator configuration.
type Config struct {
	Size     int           `env:"BATCH_SIZE" envDefault:"500"`
	Cooldown time.Duration `env:"BATCH_COOLDOWN" envDefault:"1s"`
}

// Outcome is the result of one input item. Outcomes are returned in input
// order regardless of completion order.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// Option configures a Process run.
type Option func(*options)

type options struct {
	size     int
	cooldown time.Duration
	logger   *slog.Logger
}

// WithSize sets the batch size.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithCooldown sets the pause between batches.
func WithCooldown(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cooldown = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Process runs fn over items in fixed-size batches. Requests within a batch
// run concurrently; batches run strictly one after another with a cooldown
// between them. Each item's failure is isolated in its Outcome and never
// aborts siblings. Context cancellation stops before the next batch; items
// never started report the context error.
func Process[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts ...Option) []Outcome[R] {
	o := &options{
		size:     DefaultSize,
		cooldown: DefaultCooldown,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	outcomes := make([]Outcome[R], len(items))
	for i := range outcomes {
		outcomes[i].Index = i
	}

	batches := (len(items) + o.size - 1) / o.size
	for b := 0; b < batches; b++ {
		start := b * o.size
		end := min(start+o.size, len(items))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				outcomes[i].Err = err
			}
			return outcomes
		}

		o.logger.LogAttrs(ctx, slog.LevelDebug, "processing batch",
			slog.Int("batch", b+1),
			slog.Int("of", batches),
			slog.Int("size", end-start),
		)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i].Value, outcomes[i].Err = run(ctx, items[i], fn)
				return nil
			})
		}
		_ = g.Wait()

		if b < batches-1 && o.cooldown > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.cooldown):
			}
		}
	}
	return outcomes
}

// run isolates panics from fn so one bad request cannot take down the whole
// batch.
func run[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch item panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}
