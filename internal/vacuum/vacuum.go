// Package vacuum removes stored items that are older than the retention window.
package vacuum

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger deletes items first seen more than olderThan ago.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Job runs the retention purge.
type Job struct {
	store Purger
	log   *slog.Logger
}

// New creates a purge Job.
func New(store Purger, log *slog.Logger) *Job {
	return &Job{store: store, log: log}
}

// RetentionFromDays converts a purge_after_days setting to a duration.
func RetentionFromDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// Run purges once and returns the number of removed items.
func (j *Job) Run(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}

	n, err := j.store.Purge(ctx, retention)
	if err != nil {
		j.log.Error("purge", "retention", retention, "error", err)
		return 0, fmt.Errorf("purge older than %s: %w", retention, err)
	}

	j.log.Info("purged expired items", "retention", retention, "removed", n)
	return n, nil
}
