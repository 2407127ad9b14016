// Command coupon-import upserts coupons from gzipped JSON-lines files.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/repository"
)

func main() {
	var (
		databaseURL string
		cfg         importConfig
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.BatchSize, "batch-size", 500, "coupons per database round trip")
	flag.UintVar(&cfg.Capacity, "expected-codes", 10_000_000, "expected number of distinct codes, sizes the duplicate filter")
	flag.Float64Var(&cfg.FPR, "fpr", 1e-9, "duplicate filter false positive rate")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		lg.Fatal("usage: coupon-import [flags] file.jsonl.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, cfg, flag.Args()); err != nil {
		lg.Error("Coupon import failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, cfg importConfig, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	opens := make([]func() (io.ReadCloser, error), len(files))
	for i, f := range files {
		opens[i] = openGzip(f)
	}

	im := newImporter(repository.NewCouponRepository(pool), cfg, lg)
	stats, err := im.Run(ctx, opens, files)
	lg.Info("Coupon import finished",
		zap.Int("read", stats.Read),
		zap.Int("invalid", stats.Invalid),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("written", stats.Written),
	)
	return err
}
