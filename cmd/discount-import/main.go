// Command discount-import bulk loads discount definitions from gzip
// compressed JSON Lines files.
//
// Every line is one object:
//
//	{"code":"SPRING","percent":"20","release_date":"2026-03-01T00:00:00Z",
//	 "expiration_date":"2026-06-01T00:00:00Z","max_users":500,"minimum_order_value":"50"}
//
// Files are decoded concurrently. A code defined more than once keeps the
// definition that appears last in argument order.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		pattern     string
		databaseURL string
		batchSize   int
		dryRun      bool
	)

	flag.StringVar(&pattern, "files", "data/discounts*.jsonl.gz", "glob of .jsonl.gz files to import")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "discounts per database round trip")
	flag.BoolVar(&dryRun, "dry-run", false, "validate files without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, batchSize, dryRun); err != nil {
		slog.Error("discount import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, batchSize int, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}

	slog.Info("decoding files", slog.Int("files", len(files)))
	perFile, err := readAll(ctx, files)
	if err != nil {
		return err
	}

	defs, dups := dedupe(perFile)
	slog.Info("definitions ready", slog.Int("discounts", len(defs)), slog.Int("duplicates", dups))

	if dryRun || len(defs) == 0 {
		return nil
	}

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return write(ctx, pool, defs, batchSize)
}
