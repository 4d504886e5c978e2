package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"news_digest/internal/fetcher"
	"news_digest/internal/filter"
	"news_digest/internal/model"
	"news_digest/internal/pipeline"
	"news_digest/internal/storage"
	"news_digest/internal/vacuum"
)

const retention = 30 * 24 * time.Hour

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSource struct {
	name  string
	items []model.CandidateItem
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(context.Context) ([]model.CandidateItem, error) {
	return s.items, nil
}

// countingSource returns one new item per call.
type countingSource struct {
	mu sync.Mutex
	n  int
}

func (s *countingSource) Name() string { return "rss:counter" }

func (s *countingSource) Fetch(context.Context) ([]model.CandidateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	id := strconv.Itoa(s.n)
	return []model.CandidateItem{{
		ExternalID: id,
		Source:     model.RSSSource("counter"),
		Title:      "GraphQL issue " + id,
		URL:        "https://counter.example.com/" + id,
		Text:       "GraphQL issue " + id,
	}}, nil
}

type sentDigest struct {
	Subject string
	IDs     []string
}

type recordingSink struct {
	mu     sync.Mutex
	sent   []sentDigest
	err    error
	onSend func(n int)
}

func (r *recordingSink) Send(_ context.Context, subject string, digest []model.DigestEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	ids := make([]string, len(digest))
	for i, e := range digest {
		ids[i] = e.ExternalID
	}
	r.sent = append(r.sent, sentDigest{Subject: subject, IDs: ids})
	if r.onSend != nil {
		r.onSend(len(r.sent))
	}
	return nil
}

func (r *recordingSink) digests() []sentDigest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentDigest(nil), r.sent...)
}

func item(source model.Source, id, title string) model.CandidateItem {
	return model.CandidateItem{
		ExternalID: id,
		Source:     source,
		Title:      title,
		URL:        "https://example.com/" + id,
		Text:       title,
	}
}

func testSources() []fetcher.Source {
	return []fetcher.Source{
		&staticSource{name: "hackernews", items: []model.CandidateItem{
			item(model.PrimarySource, "1", "GraphQL federation in practice"),
			item(model.PrimarySource, "2", "A history of the bicycle"),
		}},
		&staticSource{name: "rss:blog", items: []model.CandidateItem{
			item(model.RSSSource("blog"), "1", "Designing a public API"),
		}},
	}
}

type fixture struct {
	store *storage.SQLite
	sink  *recordingSink
	sched *Scheduler
}

func newFixture(t *testing.T, sources []fetcher.Source, opts Options, firstSeen time.Time) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	set, err := filter.Compile([]model.TopicFilter{
		{Title: "GraphQL", Value: "graphql"},
		{Title: "API", Value: `\bapi\b`},
	})
	if err != nil {
		t.Fatalf("compile filters: %v", err)
	}
	p, err := pipeline.New(pipeline.Rules{Filters: set}, store, discardLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if !firstSeen.IsZero() {
		p.SetClock(func() time.Time { return firstSeen })
	}

	sink := &recordingSink{}
	if opts.Subject == "" {
		opts.Subject = "News digest"
	}
	if opts.Retention == 0 {
		opts.Retention = retention
	}
	sched := New(sources, p, vacuum.New(store, discardLogger()), sink, opts, discardLogger())
	return &fixture{store: store, sink: sink, sched: sched}
}

func TestRunDigest(t *testing.T) {
	f := newFixture(t, testSources(), Options{}, time.Time{})
	ctx := context.Background()

	n, err := f.sched.RunDigest(ctx, false)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if diff := cmp.Diff(2, n); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}

	n, err = f.sched.RunDigest(ctx, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if diff := cmp.Diff(0, n); diff != "" {
		t.Errorf("second run delivered mismatch (-want +got):\n%s", diff)
	}

	want := []sentDigest{{Subject: "News digest", IDs: []string{"1", "1"}}}
	if diff := cmp.Diff(want, f.sink.digests()); diff != "" {
		t.Errorf("sent digests mismatch (-want +got):\n%s", diff)
	}

	count, err := f.store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if diff := cmp.Diff(int64(3), count); diff != "" {
		t.Errorf("stored count mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDigestReverse(t *testing.T) {
	f := newFixture(t, testSources(), Options{}, time.Time{})

	n, err := f.sched.RunDigest(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(1, n); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}
	want := []sentDigest{{Subject: "News digest (uncategorized)", IDs: []string{"2"}}}
	if diff := cmp.Diff(want, f.sink.digests()); diff != "" {
		t.Errorf("sent digests mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDigestDeliveryFailure(t *testing.T) {
	f := newFixture(t, testSources(), Options{}, time.Time{})
	f.sink.err = errors.New("smtp: 554 rejected")
	ctx := context.Background()

	n, err := f.sched.RunDigest(ctx, false)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if diff := cmp.Diff(0, n); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}

	// Items are recorded before delivery, so they are not offered again.
	f.sink.err = nil
	n, err = f.sched.RunDigest(ctx, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if diff := cmp.Diff(0, n); diff != "" {
		t.Errorf("second run delivered mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDigestPurgeAfterRun(t *testing.T) {
	old := time.Now().Add(-2 * retention)
	f := newFixture(t, testSources(), Options{PurgeAfterRun: true}, old)
	ctx := context.Background()

	n, err := f.sched.RunDigest(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(2, n); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}

	count, err := f.store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if diff := cmp.Diff(int64(0), count); diff != "" {
		t.Errorf("stored count after purge mismatch (-want +got):\n%s", diff)
	}
}

func TestRunVacuum(t *testing.T) {
	old := time.Now().Add(-2 * retention)
	f := newFixture(t, testSources(), Options{}, old)
	ctx := context.Background()

	if _, err := f.sched.RunDigest(ctx, false); err != nil {
		t.Fatalf("run: %v", err)
	}

	removed, err := f.sched.RunVacuum(ctx)
	if err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	if diff := cmp.Diff(int64(3), removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}

	removed, err = f.sched.RunVacuum(ctx)
	if err != nil {
		t.Fatalf("second vacuum: %v", err)
	}
	if diff := cmp.Diff(int64(0), removed); diff != "" {
		t.Errorf("second vacuum removed mismatch (-want +got):\n%s", diff)
	}
}

func TestRunVacuumFailure(t *testing.T) {
	f := newFixture(t, nil, Options{}, time.Time{})
	_ = f.store.Close()

	if _, err := f.sched.RunVacuum(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	f := newFixture(t, []fetcher.Source{&countingSource{}}, Options{}, time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sink.onSend = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx, false, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	want := []sentDigest{
		{Subject: "News digest", IDs: []string{"1"}},
		{Subject: "News digest", IDs: []string{"2"}},
		{Subject: "News digest", IDs: []string{"3"}},
	}
	if diff := cmp.Diff(want, f.sink.digests()); diff != "" {
		t.Errorf("sent digests mismatch (-want +got):\n%s", diff)
	}
}
