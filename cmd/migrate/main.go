package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"news_digest/internal/config"
	"news_digest/migrations"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the item store schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("DATABASE_PATH", config.DefaultDatabasePath), "path to sqlite database")

	commands := []struct {
		use, short string
		fn         func(ctx context.Context, db *sql.DB) error
	}{
		{"up", "Migrate to the latest version", func(ctx context.Context, db *sql.DB) error {
			return goose.UpContext(ctx, db, ".")
		}},
		{"up-one", "Migrate one version up", func(ctx context.Context, db *sql.DB) error {
			return goose.UpByOneContext(ctx, db, ".")
		}},
		{"down", "Roll back one version", func(ctx context.Context, db *sql.DB) error {
			return goose.DownContext(ctx, db, ".")
		}},
		{"status", "Show migration status", func(ctx context.Context, db *sql.DB) error {
			return goose.StatusContext(ctx, db, ".")
		}},
		{"version", "Show current version", func(ctx context.Context, db *sql.DB) error {
			return goose.VersionContext(ctx, db, ".")
		}},
		{"reset", "Roll back all migrations", func(ctx context.Context, db *sql.DB) error {
			return goose.ResetContext(ctx, db, ".")
		}},
	}
	for _, c := range commands {
		root.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(dbPath, func(db *sql.DB) error {
					if err := c.fn(cmd.Context(), db); err != nil {
						return fmt.Errorf("%s: %w", c.use, err)
					}
					return nil
				})
			},
		})
	}
	return root
}

func withDB(path string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		return err
	}
	return fn(db)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
