package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"news_digest/internal/config"
	"news_digest/internal/delivery"
	"news_digest/internal/fetcher"
	"news_digest/internal/filter"
	"news_digest/internal/pipeline"
	"news_digest/internal/scheduler"
	"news_digest/internal/storage"
	"news_digest/internal/vacuum"
)

type options struct {
	configPath string
	reverse    bool
	vacuum     bool
	feedsOnly  bool
	interval   time.Duration
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("news-digest", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "news-digest",
		Short: "Collect top stories and RSS feeds into a topic-labeled digest",
		Long: `news-digest fetches Hacker News top stories and the configured RSS feeds,
drops items it has already seen or whose domain is blacklisted, labels the rest
with the configured topics and delivers them by email, Telegram or to stdout.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to the config file")
	flags.BoolVarP(&opts.reverse, "reverse", "r", false, "deliver only items that match no topic")
	flags.BoolVarP(&opts.vacuum, "vacuum", "v", false, "purge expired items and exit without fetching")
	flags.BoolVarP(&opts.feedsOnly, "feeds-only", "f", false, "skip top stories and fetch RSS feeds only")
	flags.DurationVar(&opts.interval, "interval", 0, "repeat the digest at this interval until interrupted (0 runs once)")
	cmd.MarkFlagsMutuallyExclusive("vacuum", "reverse")
	cmd.MarkFlagsMutuallyExclusive("vacuum", "interval")

	return cmd
}

func run(ctx context.Context, opts options) error {
	if opts.interval < 0 {
		return errors.New("interval must not be negative")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Rules are checked before anything touches the database or the network.
	rules, err := buildRules(cfg)
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	p, err := pipeline.New(rules, store, log)
	if err != nil {
		return err
	}
	schedOpts := scheduler.Options{
		Subject:       subject(cfg),
		Retention:     vacuum.RetentionFromDays(cfg.PurgeAfterDays),
		PurgeAfterRun: cfg.PurgeAfterRun,
	}
	job := vacuum.New(store, log)

	if opts.vacuum {
		sched := scheduler.New(nil, p, job, nil, schedOpts, log)
		if _, err := sched.RunVacuum(ctx); err != nil {
			return err
		}
		if remaining, err := store.Count(ctx); err == nil {
			log.Info("items remaining", "count", remaining)
		}
		return nil
	}

	sink, err := delivery.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create %s delivery: %w", cfg.Delivery(), err)
	}
	sched := scheduler.New(sources(cfg, store, opts.feedsOnly, log), p, job, sink, schedOpts, log)

	log.Info("starting digest",
		"delivery", cfg.Delivery(),
		"reverse", opts.reverse,
		"feeds_only", opts.feedsOnly,
		"topics", rules.Filters.Titles(),
		"blacklisted_domains", rules.Blacklist.Len(),
		"feeds", len(cfg.RSSSources),
	)

	if opts.interval > 0 {
		sched.Run(ctx, opts.reverse, opts.interval)
		log.Info("scheduler stopped")
		return nil
	}

	_, err = sched.RunDigest(ctx, opts.reverse)
	return err
}

func buildRules(cfg *config.Config) (pipeline.Rules, error) {
	set, err := filter.Compile(cfg.Filters)
	if err != nil {
		return pipeline.Rules{}, fmt.Errorf("compile filters: %w", err)
	}
	bl, err := filter.NewBlacklist(cfg.BlacklistedDomains)
	if err != nil {
		return pipeline.Rules{}, fmt.Errorf("blacklisted domains: %w", err)
	}
	return pipeline.Rules{
		Filters:              set,
		Blacklist:            bl,
		IncludeUncategorized: cfg.IncludeUncategorized,
	}, nil
}

func sources(cfg *config.Config, store storage.Storage, feedsOnly bool, log *slog.Logger) []fetcher.Source {
	client := &http.Client{Timeout: cfg.FetchTimeout}

	var srcs []fetcher.Source
	if !feedsOnly {
		srcs = append(srcs, fetcher.NewTopStories(client, cfg.TopStories, log).Source(store))
	}
	rss := fetcher.NewRSS(client)
	for _, feed := range cfg.RSSSources {
		srcs = append(srcs, rss.Source(feed.Name, feed.URL))
	}
	return srcs
}

func subject(cfg *config.Config) string {
	if cfg.SMTP != nil && cfg.SMTP.Subject != "" {
		return cfg.SMTP.Subject
	}
	return config.DefaultDigestSubject
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
