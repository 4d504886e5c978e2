// Package scheduler wires a digest run together: fetch, classify, deliver and
// optionally purge expired history.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"news_digest/internal/delivery"
	"news_digest/internal/fetcher"
	"news_digest/internal/pipeline"
	"news_digest/internal/vacuum"
)

// Options configures the parts of a run that are not owned by a collaborator.
type Options struct {
	Subject       string
	Retention     time.Duration
	PurgeAfterRun bool
}

// Scheduler runs digests and vacuums.
type Scheduler struct {
	collector *fetcher.Collector
	sources   []fetcher.Source
	pipeline  *pipeline.Pipeline
	vacuum    *vacuum.Job
	sink      delivery.Sink
	opts      Options
	log       *slog.Logger
}

// New creates a Scheduler. Sources are fetched concurrently but their items
// are classified in the order given.
func New(sources []fetcher.Source, p *pipeline.Pipeline, v *vacuum.Job, sink delivery.Sink, opts Options, log *slog.Logger) *Scheduler {
	return &Scheduler{
		collector: fetcher.NewCollector(log),
		sources:   sources,
		pipeline:  p,
		vacuum:    v,
		sink:      sink,
		opts:      opts,
		log:       log,
	}
}

// RunDigest fetches every source, classifies the new items and delivers the
// digest. It returns the number of delivered entries.
//
// Items that fail to be checked or recorded are logged and left out; they do
// not fail the run. Delivery and post-run purge failures do.
func (s *Scheduler) RunDigest(ctx context.Context, reverse bool) (int, error) {
	log := s.log.With("run_id", uuid.NewString(), "reverse", reverse)
	started := time.Now()

	items := s.collector.Collect(ctx, s.sources)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log.Info("collected items", "sources", len(s.sources), "items", len(items))

	res, err := s.pipeline.Run(ctx, items, reverse)
	if err != nil {
		log.Warn("some items were not processed", "failed", res.Failed, "error", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var errs error
	delivered := 0
	if len(res.Digest) > 0 {
		if err := s.sink.Send(ctx, s.subject(reverse), res.Digest); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deliver digest: %w", err))
		} else {
			delivered = len(res.Digest)
		}
	}

	if s.opts.PurgeAfterRun {
		if _, err := s.vacuum.Run(ctx, s.opts.Retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	log.Info("digest run finished",
		"delivered", delivered,
		"duplicates", res.Duplicates,
		"blacklisted", res.Blacklisted,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return delivered, errs
}

// RunVacuum purges history older than the retention window without fetching.
func (s *Scheduler) RunVacuum(ctx context.Context) (int64, error) {
	log := s.log.With("run_id", uuid.NewString())
	removed, err := s.vacuum.Run(ctx, s.opts.Retention)
	if err != nil {
		return 0, err
	}
	log.Info("vacuum finished", "removed", removed)
	return removed, nil
}

// Run runs a digest immediately and then every interval, blocking until ctx
// is cancelled. Failed runs are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context, reverse bool, interval time.Duration) {
	s.runOnce(ctx, reverse)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, reverse)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, reverse bool) {
	if _, err := s.RunDigest(ctx, reverse); err != nil && ctx.Err() == nil {
		s.log.Error("digest run", "error", err)
	}
}

func (s *Scheduler) subject(reverse bool) string {
	if reverse {
		return s.opts.Subject + " (uncategorized)"
	}
	return s.opts.Subject
}
