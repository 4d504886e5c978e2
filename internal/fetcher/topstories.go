package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"news_digest/internal/config"
	"news_digest/internal/model"
)

const discussionURL = "https://news.ycombinator.com/item?id="

// Unseen filters ids down to those not stored yet.
type Unseen interface {
	Unseen(ctx context.Context, source model.Source, ids []string) ([]string, error)
}

// Story is an item of the top stories API.
type Story struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Time    int64  `json:"time"`
	Deleted bool   `json:"deleted"`
	Dead    bool   `json:"dead"`
}

// TopStories is a client of the Hacker News top stories API.
type TopStories struct {
	client      HTTPClient
	baseURL     string
	limit       int
	concurrency int
	log         *slog.Logger
}

// NewTopStories creates a TopStories client.
func NewTopStories(client HTTPClient, cfg config.TopStoriesConfig, log *slog.Logger) *TopStories {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}
	return &TopStories{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		limit:       cfg.Limit,
		concurrency: concurrency,
		log:         log,
	}
}

// IDs returns the current top story ids, best first.
func (t *TopStories) IDs(ctx context.Context) ([]int64, error) {
	body, err := get(ctx, t.client, t.baseURL+"/topstories.json")
	if err != nil {
		return nil, fmt.Errorf("list top stories: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decode top stories: %w", err)
	}
	return ids, nil
}

// Item downloads a single story. Deleted stories come back as null, which is
// reported as a story with Deleted set.
func (t *TopStories) Item(ctx context.Context, id int64) (*Story, error) {
	body, err := get(ctx, t.client, fmt.Sprintf("%s/item/%d.json", t.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	var s *Story
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode item %d: %w", id, err)
	}
	if s == nil {
		return &Story{ID: id, Deleted: true}, nil
	}
	return s, nil
}

// Fetch returns the top stories that seen has not stored yet, in ranking
// order. Only unseen stories are downloaded. Stories that are deleted, dead or
// fail to download are skipped.
func (t *TopStories) Fetch(ctx context.Context, seen Unseen) ([]model.CandidateItem, error) {
	ids, err := t.IDs(ctx)
	if err != nil {
		return nil, err
	}
	if t.limit > 0 && len(ids) > t.limit {
		ids = ids[:t.limit]
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.FormatInt(id, 10)
	}
	keys, err = seen.Unseen(ctx, model.PrimarySource, keys)
	if err != nil {
		return nil, fmt.Errorf("filter seen stories: %w", err)
	}
	t.log.Debug("top stories", "listed", len(ids), "unseen", len(keys))

	results := make([]*model.CandidateItem, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return fmt.Errorf("parse story id %q: %w", key, err)
			}
			s, err := t.Item(gctx, id)
			if err != nil {
				t.log.Warn("skip story", "id", id, "error", err)
				return nil
			}
			if s.Deleted || s.Dead || strings.TrimSpace(s.Title) == "" {
				t.log.Debug("skip story", "id", id, "deleted", s.Deleted, "dead", s.Dead)
				return nil
			}
			results[i] = toCandidate(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]model.CandidateItem, 0, len(results))
	for _, it := range results {
		if it != nil {
			items = append(items, *it)
		}
	}
	return items, nil
}

// Source returns the top stories as a digest source that consults seen
// before downloading.
func (t *TopStories) Source(seen Unseen) Source {
	return &topStoriesSource{client: t, seen: seen}
}

func toCandidate(s *Story) *model.CandidateItem {
	id := strconv.FormatInt(s.ID, 10)
	link := strings.TrimSpace(s.URL)
	if link == "" {
		link = discussionURL + id
	}
	title := strings.TrimSpace(s.Title)
	return &model.CandidateItem{
		ExternalID:  id,
		Source:      model.PrimarySource,
		Title:       title,
		URL:         link,
		Text:        title,
		PublishedAt: time.Unix(s.Time, 0).UTC(),
	}
}

type topStoriesSource struct {
	client *TopStories
	seen   Unseen
}

func (s *topStoriesSource) Name() string { return model.PrimarySource.Key() }

func (s *topStoriesSource) Fetch(ctx context.Context) ([]model.CandidateItem, error) {
	return s.client.Fetch(ctx, s.seen)
}
