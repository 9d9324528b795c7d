package testdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// WipeOptions selects the deletion strategy for a wipe.
type WipeOptions struct {
	// Parallel deletes dependency-safe batches of tables concurrently
	// instead of strictly one table at a time. Both modes leave the same
	// final state; only timing differs. Parallel mode needs a handle that
	// supports concurrent use (*sql.DB); inside a transaction, use
	// sequential mode.
	Parallel bool
}

// Cleaner deletes all rows across the application tables on a given
// connection without violating foreign-key constraints.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a Cleaner.
// If logger is nil, a default logger will be used.
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		logger: logger.With(slog.String("component", "cleaner")),
	}
}

// Wipe removes every row from every application table in dependency order.
// Failures are not retried and nothing is rolled back: the first error
// aborts the run and the caller must treat the database state as unknown,
// typically falling back to a full teardown instead of reusing the
// database.
func (c *Cleaner) Wipe(ctx context.Context, db DBTX, opts WipeOptions) error {
	mode := "sequential"
	if opts.Parallel {
		mode = "parallel"
	}

	start := time.Now()

	var err error
	if opts.Parallel {
		err = c.wipeParallel(ctx, db)
	} else {
		err = c.wipeSequential(ctx, db)
	}
	if err != nil {
		return err
	}

	c.logger.Debug("wipe completed",
		slog.String("mode", mode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

func (c *Cleaner) wipeSequential(ctx context.Context, db DBTX) error {
	for _, table := range wipeOrder {
		rows, err := table.DeleteAll(ctx, db)
		if err != nil {
			return newError("wipe", "table deletion failed",
				map[string]any{"mode": "sequential", "table": string(table)},
				fmt.Errorf("%w: %v", ErrCleanupFailed, err))
		}
		c.logger.Debug("table wiped",
			slog.String("table", string(table)),
			slog.Int64("rows_deleted", rows))
	}
	return nil
}

func (c *Cleaner) wipeParallel(ctx context.Context, db DBTX) error {
	for _, batch := range wipeBatches {
		g, gctx := errgroup.WithContext(ctx)
		for _, table := range batch {
			g.Go(func() error {
				rows, err := table.DeleteAll(gctx, db)
				if err != nil {
					return newError("wipe", "table deletion failed",
						map[string]any{"mode": "parallel", "table": string(table)},
						fmt.Errorf("%w: %v", ErrCleanupFailed, err))
				}
				c.logger.Debug("table wiped",
					slog.String("table", string(table)),
					slog.Int64("rows_deleted", rows))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
