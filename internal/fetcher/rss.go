// Package fetcher downloads news items from the top stories API and from RSS
// or Atom feeds.
package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"news_digest/internal/model"
)

const (
	userAgent   = "NewsDigest/1.0"
	maxBodySize = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RSS downloads and parses RSS and Atom feeds.
type RSS struct {
	client HTTPClient
	now    func() time.Time
}

// NewRSS creates an RSS fetcher with the given HTTP client.
func NewRSS(client HTTPClient) *RSS {
	return &RSS{client: client, now: time.Now}
}

// Fetch downloads and parses the feed at url.
func (f *RSS) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	body, err := get(ctx, f.client, url)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Source returns the feed at url as a named digest source.
func (f *RSS) Source(name, url string) Source {
	return &feedSource{rss: f, source: model.RSSSource(name), url: url}
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// Candidates converts feed items into candidates of source, in feed order.
// Items without a publication or update date are stamped with now.
func Candidates(source model.Source, feed *gofeed.Feed, now time.Time) []model.CandidateItem {
	items := make([]model.CandidateItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		published := now
		switch {
		case it.PublishedParsed != nil:
			published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			published = *it.UpdatedParsed
		}
		items = append(items, model.CandidateItem{
			ExternalID:  ItemGUID(it),
			Source:      source,
			Title:       strings.TrimSpace(it.Title),
			URL:         strings.TrimSpace(it.Link),
			Text:        strings.TrimSpace(it.Title + " " + it.Description),
			PublishedAt: published.UTC(),
		})
	}
	return items
}

type feedSource struct {
	rss    *RSS
	source model.Source
	url    string
}

func (s *feedSource) Name() string { return s.source.Key() }

func (s *feedSource) Fetch(ctx context.Context) ([]model.CandidateItem, error) {
	feed, err := s.rss.Fetch(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.url, err)
	}
	return Candidates(s.source, feed, s.rss.now()), nil
}

func get(ctx context.Context, client HTTPClient, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
