package fetcher

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"news_digest/internal/model"
)

// Source produces candidate items for a digest.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.CandidateItem, error)
}

// Collector fetches all sources of a run.
type Collector struct {
	log *slog.Logger
}

// NewCollector creates a Collector.
func NewCollector(log *slog.Logger) *Collector {
	return &Collector{log: log}
}

// Collect fetches every source concurrently and concatenates the results in
// source order. A failing source is logged and contributes nothing.
func (c *Collector) Collect(ctx context.Context, sources []Source) []model.CandidateItem {
	results := make([][]model.CandidateItem, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			items, err := src.Fetch(ctx)
			if err != nil {
				c.log.Error("fetch source", "source", src.Name(), "error", err)
				return nil
			}
			c.log.Debug("fetched source", "source", src.Name(), "items", len(items))
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var all []model.CandidateItem
	for _, items := range results {
		all = append(all, items...)
	}
	return all
}
