// Package pipeline turns a batch of fetched items into a digest of new,
// labeled items and records every evaluated item as seen.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"news_digest/internal/filter"
	"news_digest/internal/model"
)

// Store is the subset of storage.Storage used by the pipeline.
type Store interface {
	Exists(ctx context.Context, source model.Source, externalID string) (bool, error)
	Insert(ctx context.Context, item model.StoredItem) error
}

// Rules is the immutable classification configuration of a run.
type Rules struct {
	Filters   *filter.Set
	Blacklist *filter.Blacklist
	// IncludeUncategorized keeps items matching no topic in normal mode.
	IncludeUncategorized bool
}

// Result is the outcome of one pipeline run.
type Result struct {
	Digest []model.DigestEntry

	Candidates  int
	Blacklisted int
	Duplicates  int
	Recorded    int
	Failed      int
}

// Pipeline classifies candidate items against stored history.
type Pipeline struct {
	rules Rules
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Pipeline. Nil filters or blacklist mean "none configured".
func New(rules Rules, store Store, log *slog.Logger) (*Pipeline, error) {
	if rules.Filters == nil {
		set, err := filter.Compile(nil)
		if err != nil {
			return nil, fmt.Errorf("compile empty filter set: %w", err)
		}
		rules.Filters = set
	}
	if rules.Blacklist == nil {
		bl, err := filter.NewBlacklist(nil)
		if err != nil {
			return nil, fmt.Errorf("create empty blacklist: %w", err)
		}
		rules.Blacklist = bl
	}

	return &Pipeline{
		rules: rules,
		store: store,
		log:   log,
		now:   time.Now,
	}, nil
}

// SetClock overrides the clock used for first-seen timestamps.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Run processes batch in order. Items that pass the blacklist and are not
// stored yet are recorded whether or not they end up in the digest. In
// reverse mode only items matching no topic are kept.
//
// A failure to check or record one item does not stop the batch. Such items
// are left out of the digest and all failures are returned together with the
// result.
func (p *Pipeline) Run(ctx context.Context, batch []model.CandidateItem, reverse bool) (*Result, error) {
	res := &Result{Candidates: len(batch)}
	var errs error

	for _, item := range batch {
		if ctx.Err() != nil {
			return res, multierr.Append(errs, ctx.Err())
		}

		blocked, err := p.rules.Blacklist.IsBlacklisted(item.URL)
		if err != nil {
			p.log.Warn("check blacklist", "source", item.Source.Key(), "id", item.ExternalID, "url", item.URL, "error", err)
		}
		if blocked {
			res.Blacklisted++
			p.log.Debug("blacklisted", "source", item.Source.Key(), "id", item.ExternalID, "url", item.URL)
			continue
		}

		seen, err := p.store.Exists(ctx, item.Source, item.ExternalID)
		if err != nil {
			res.Failed++
			errs = multierr.Append(errs, fmt.Errorf("check %s/%s: %w", item.Source.Key(), item.ExternalID, err))
			p.log.Error("check seen", "source", item.Source.Key(), "id", item.ExternalID, "error", err)
			continue
		}
		if seen {
			res.Duplicates++
			continue
		}

		labels := p.rules.Filters.Classify(item.Text)
		include := p.keep(labels, reverse)

		firstSeen := p.now().UTC()
		err = p.store.Insert(ctx, model.StoredItem{
			ExternalID:  item.ExternalID,
			Source:      item.Source,
			FirstSeenAt: firstSeen,
		})
		if err != nil {
			res.Failed++
			errs = multierr.Append(errs, fmt.Errorf("record %s/%s: %w", item.Source.Key(), item.ExternalID, err))
			p.log.Error("record item", "source", item.Source.Key(), "id", item.ExternalID, "in_digest", include, "error", err)
			continue
		}
		res.Recorded++

		if !include {
			continue
		}
		res.Digest = append(res.Digest, model.DigestEntry{
			ExternalID:  item.ExternalID,
			Source:      item.Source,
			Title:       item.Title,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
			FirstSeenAt: firstSeen,
			Labels:      labels,
		})
	}

	p.log.Info("classified batch",
		"candidates", res.Candidates,
		"blacklisted", res.Blacklisted,
		"duplicates", res.Duplicates,
		"recorded", res.Recorded,
		"failed", res.Failed,
		"digest", len(res.Digest),
		"reverse", reverse,
	)
	return res, errs
}

func (p *Pipeline) keep(labels []string, reverse bool) bool {
	if reverse {
		return len(labels) == 0
	}
	return len(labels) > 0 || p.rules.Filters.Empty() || p.rules.IncludeUncategorized
}
