package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 64 << 10
)

var hundred = decimal.NewFromInt(100)

type definition struct {
	Code              string
	Percent           decimal.Decimal
	ReleaseDate       time.Time
	ExpirationDate    time.Time
	MaxUsers          *int
	MinimumOrderValue *decimal.Decimal
}

func (d *definition) validate() error {
	switch {
	case d.Code == "":
		return errors.New("empty code")
	case d.Percent.IsNegative() || d.Percent.GreaterThan(hundred):
		return errors.Errorf("percent %s out of range", d.Percent)
	case d.ExpirationDate.IsZero():
		return errors.New("missing expiration_date")
	case !d.ReleaseDate.IsZero() && d.ExpirationDate.Before(d.ReleaseDate):
		return errors.New("expiration_date before release_date")
	case d.MaxUsers != nil && *d.MaxUsers < 0:
		return errors.New("negative max_users")
	case d.MinimumOrderValue != nil && d.MinimumOrderValue.IsNegative():
		return errors.New("negative minimum_order_value")
	}
	return nil
}

func decodeDefinition(line []byte) (definition, error) {
	var d definition
	err := jx.DecodeBytes(line).Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := dec.Str()
			d.Code = s
			return err
		case "percent":
			v, err := decodeDecimal(dec)
			d.Percent = v
			return err
		case "release_date":
			t, err := decodeTime(dec)
			d.ReleaseDate = t
			return err
		case "expiration_date":
			t, err := decodeTime(dec)
			d.ExpirationDate = t
			return err
		case "max_users":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			n, err := dec.Int()
			d.MaxUsers = &n
			return err
		case "minimum_order_value":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			v, err := decodeDecimal(dec)
			d.MinimumOrderValue = &v
			return err
		default:
			return dec.Skip()
		}
	})
	if err != nil {
		return d, err
	}
	return d, d.validate()
}

// decodeDecimal accepts both "12.5" and 12.5.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// readAll decodes every file concurrently. The result keeps file order.
func readAll(ctx context.Context, files []string) ([][]definition, error) {
	out := make([][]definition, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			defs, err := readFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			slog.Info("file decoded", slog.String("path", path), slog.Int("discounts", len(defs)))
			out[i] = defs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readFile(ctx context.Context, path string) ([]definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	defer func() { _ = gz.Close() }()

	var defs []definition
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		d, err := decodeDefinition(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		defs = append(defs, d)
		if n%progressEvery == 0 {
			slog.Info("decode progress", slog.String("path", path), slog.Int("lines", n))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	return defs, nil
}

// dedupe flattens the per-file definitions, keeping the last definition of
// each code. A bloom filter pass finds the codes that may repeat so only
// those are tracked exactly.
func dedupe(perFile [][]definition) ([]definition, int) {
	var total int
	for _, defs := range perFile {
		total += len(defs)
	}
	if total == 0 {
		return nil, 0
	}

	filter := bloom.NewWithEstimates(uint(total), bloomFPR)
	suspects := make(map[string]int)
	for _, defs := range perFile {
		for i := range defs {
			if filter.TestAndAddString(defs[i].Code) {
				suspects[defs[i].Code] = 0
			}
		}
	}

	// Count occurrences of suspected codes so the last one can be kept.
	for _, defs := range perFile {
		for i := range defs {
			if _, ok := suspects[defs[i].Code]; ok {
				suspects[defs[i].Code]++
			}
		}
	}

	out := make([]definition, 0, total)
	var dups int
	for _, defs := range perFile {
		for _, d := range defs {
			if n, ok := suspects[d.Code]; ok && n > 1 {
				suspects[d.Code] = n - 1
				dups++
				continue
			}
			out = append(out, d)
		}
	}
	return out, dups
}

const upsertDiscountSQL = `
INSERT INTO discounts (code, discount_percent, release_date, expiration_date, max_users, minimum_order_value)
VALUES ($1, $2, COALESCE($3, now()), $4, $5, $6)
ON CONFLICT (code) DO UPDATE
SET discount_percent = EXCLUDED.discount_percent, release_date = EXCLUDED.release_date,
    expiration_date = EXCLUDED.expiration_date, max_users = EXCLUDED.max_users,
    minimum_order_value = EXCLUDED.minimum_order_value`

// write upserts the definitions in batches, one transaction per batch.
func write(ctx context.Context, pool *pgxpool.Pool, defs []definition, batchSize int) error {
	batchSize = max(batchSize, 1)
	for start := 0; start < len(defs); start += batchSize {
		chunk := defs[start:min(start+batchSize, len(defs))]
		if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for i := range chunk {
				d := &chunk[i]
				var release *time.Time
				if !d.ReleaseDate.IsZero() {
					release = &d.ReleaseDate
				}
				batch.Queue(upsertDiscountSQL,
					d.Code, d.Percent, release, d.ExpirationDate, d.MaxUsers, d.MinimumOrderValue,
				)
			}
			return tx.SendBatch(ctx, batch).Close()
		}); err != nil {
			return errors.Wrapf(err, "write batch at %d", start)
		}
		slog.Info("write progress", slog.Int("written", start+len(chunk)), slog.Int("total", len(defs)))
	}
	return nil
}
