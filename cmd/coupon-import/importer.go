package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
)

const maxLineBytes = 64 << 10

// batchWriter is implemented by *repository.CouponRepository.
type batchWriter interface {
	UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error
}

type importConfig struct {
	BatchSize int
	// Capacity and FPR size the duplicate filter. A false positive skips a
	// distinct code, so FPR should stay far below 1/Capacity.
	Capacity uint
	FPR      float64
	// Buffer is how many parsed coupons each file may read ahead.
	Buffer int
}

type importStats struct {
	Read       int
	Invalid    int
	Duplicates int
	Written    int
}

type importer struct {
	repo batchWriter
	cfg  importConfig
	lg   *zap.Logger
	seen *bloom.BloomFilter
}

func newImporter(repo batchWriter, cfg importConfig, lg *zap.Logger) *importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = 1_000_000
	}
	if cfg.FPR <= 0 || cfg.FPR >= 1 {
		cfg.FPR = 1e-9
	}
	return &importer{
		repo: repo,
		cfg:  cfg,
		lg:   lg,
		seen: bloom.NewWithEstimates(cfg.Capacity, cfg.FPR),
	}
}

type parsed struct {
	coupon coupon.Coupon
	// invalid lines are forwarded so the writer can count them in order.
	invalid bool
}

// Run imports the files. Files are parsed concurrently but consumed in the
// order given, so the first occurrence of a code across all files wins.
func (im *importer) Run(ctx context.Context, opens []func() (io.ReadCloser, error), names []string) (importStats, error) {
	var stats importStats
	g, ctx := errgroup.WithContext(ctx)

	streams := make([]chan parsed, len(opens))
	for i := range opens {
		streams[i] = make(chan parsed, im.cfg.Buffer)
		g.Go(func() error {
			defer close(streams[i])
			return im.read(ctx, opens[i], names[i], streams[i])
		})
	}

	g.Go(func() error {
		batch := make([]coupon.Coupon, 0, im.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := im.repo.UpsertBatch(ctx, batch); err != nil {
				return err
			}
			stats.Written += len(batch)
			im.lg.Info("Write progress", zap.Int("written", stats.Written))
			batch = batch[:0]
			return nil
		}

		for _, stream := range streams {
			for p := range stream {
				stats.Read++
				if p.invalid {
					stats.Invalid++
					continue
				}
				if im.seen.TestAndAddString(p.coupon.Code) {
					stats.Duplicates++
					im.lg.Debug("Skipping duplicate code", zap.String("code", p.coupon.Code))
					continue
				}
				batch = append(batch, p.coupon)
				if len(batch) == im.cfg.BatchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (im *importer) read(ctx context.Context, open func() (io.ReadCloser, error), name string, out chan<- parsed) error {
	rc, err := open()
	if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	defer func() { _ = rc.Close() }()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		p := parsed{}
		c, err := parseCoupon(raw)
		if err != nil {
			im.lg.Warn("Invalid coupon line",
				zap.String("file", name),
				zap.Int("line", line),
				zap.Error(err),
			)
			p.invalid = true
		} else {
			p.coupon = c
		}
		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", name)
	}
	return nil
}

// openGzip opens a gzip-compressed file for reading.
func openGzip(path string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		gz, err := pgzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		return &gzipFile{Reader: gz, file: f}, nil
	}
}

type gzipFile struct {
	*pgzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gzErr
}
