package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"

	"github.com/cenkalti/backoff/v4"
)

// LoaderConfig controls parsing policy and retry bounds.
type LoaderConfig struct {
	// StrictTimestamps aborts the load on the first bad row. When false bad
	// rows are dropped, counted and logged.
	StrictTimestamps bool
	MaxAttempts      int
	InitialInterval  time.Duration
	MaxElapsed       time.Duration
}

// DefaultLoaderConfig is strict with three attempts.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		StrictTimestamps: true,
		MaxAttempts:      3,
		InitialInterval:  200 * time.Millisecond,
		MaxElapsed:       10 * time.Second,
	}
}

// Loader reads a RecordSource into per-asset series.
type Loader struct {
	src domrepo.RecordSource
	cfg LoaderConfig
	l   *applogger.Logger
}

func NewLoader(src domrepo.RecordSource, cfg LoaderConfig, l *applogger.Logger) *Loader {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Loader{src: src, cfg: cfg, l: l}
}

// Source is the underlying record source.
func (ld *Loader) Source() domrepo.RecordSource { return ld.src }

// Load reads every record, grouped by asset type and ordered by timestamp.
// Groups are returned in ascending asset order.
func (ld *Loader) Load(ctx context.Context) ([]models.AssetSeries, error) {
	records, err := ld.read(ctx, "")
	if err != nil {
		return nil, err
	}
	return groupByAsset(records), nil
}

// LoadAsset reads one asset's series restricted to [from, to]. A zero bound
// is open.
func (ld *Loader) LoadAsset(ctx context.Context, asset string, from, to time.Time) (*models.AssetSeries, error) {
	records, err := ld.read(ctx, asset)
	if err != nil {
		return nil, err
	}

	kept := records[:0]
	for _, r := range records {
		if r.AssetType != asset {
			continue
		}
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		kept = append(kept, r)
	}
	return &models.AssetSeries{AssetType: asset, Records: models.SortByTimestamp(kept)}, nil
}

func (ld *Loader) read(ctx context.Context, asset string) ([]models.Record, error) {
	start := time.Now()

	if err := ld.checkSchema(ctx); err != nil {
		return nil, err
	}

	var raw []models.RawRecord
	err := ld.retry(ctx, "fetch", func() error {
		rows, err := ld.src.Fetch(ctx, asset)
		if err != nil {
			return err
		}
		raw = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	records, dropped, err := ld.parse(raw)
	if err != nil {
		ld.l.Error("loader parse error",
			applogger.String("source", ld.src.Name()),
			applogger.Error(err))
		return nil, err
	}
	if dropped > 0 {
		ld.l.Warn("loader dropped unparsable rows",
			applogger.String("source", ld.src.Name()),
			applogger.Int("dropped", dropped),
			applogger.Int("kept", len(records)))
	}

	ld.l.Debug("loader ok",
		applogger.String("source", ld.src.Name()),
		applogger.String("asset", asset),
		applogger.Int("rows", len(records)),
		applogger.Duration("duration_ms", time.Since(start)))
	return records, nil
}

func (ld *Loader) checkSchema(ctx context.Context) error {
	var cols []string
	err := ld.retry(ctx, "columns", func() error {
		c, err := ld.src.Columns(ctx)
		if err != nil {
			return err
		}
		cols = c
		return nil
	})
	if err != nil {
		return err
	}

	if missing := MissingColumns(cols); len(missing) > 0 {
		ld.l.Error("record source schema mismatch",
			applogger.String("source", ld.src.Name()),
			applogger.Strings("missing", missing))
		return &models.DataSourceError{Op: "schema", Missing: missing}
	}
	return nil
}

// MissingColumns returns the required columns absent from have, in
// models.RequiredColumns order.
func MissingColumns(have []string) []string {
	present := make(map[string]bool, len(have))
	for _, c := range have {
		present[c] = true
	}
	var missing []string
	for _, c := range models.RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// retry runs op with bounded exponential backoff. DataSourceErrors are
// permanent; anything else is treated as transient.
func (ld *Loader) retry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	if ld.cfg.InitialInterval > 0 {
		eb.InitialInterval = ld.cfg.InitialInterval
	}
	eb.MaxElapsedTime = ld.cfg.MaxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(ld.cfg.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		var dse *models.DataSourceError
		if errors.As(err, &dse) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		ld.l.Warn("record source call failed, retrying",
			applogger.String("source", ld.src.Name()),
			applogger.String("op", op),
			applogger.Int("attempt", attempt),
			applogger.Duration("wait_ms", wait),
			applogger.Error(err))
	})
	if err == nil {
		return nil
	}

	var dse *models.DataSourceError
	if errors.As(err, &dse) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	ld.l.Error("record source unavailable",
		applogger.String("source", ld.src.Name()),
		applogger.String("op", op),
		applogger.Int("attempts", attempt),
		applogger.Error(err))
	return &models.DataSourceError{Op: op, Err: fmt.Errorf("%s after %d attempt(s): %w", ld.src.Name(), attempt, err)}
}

// parse converts raw rows. In strict mode the first bad row fails the load;
// otherwise bad rows are skipped and counted.
func (ld *Loader) parse(raw []models.RawRecord) ([]models.Record, int, error) {
	out := make([]models.Record, 0, len(raw))
	dropped := 0
	for i, r := range raw {
		row := r.Row
		if row == 0 {
			row = i + 1
		}
		rec, err := parseRaw(r)
		if err != nil {
			if ld.cfg.StrictTimestamps {
				return nil, 0, &models.DataSourceError{Op: "parse", Err: fmt.Errorf("row %d: %w", row, err)}
			}
			dropped++
			continue
		}
		out = append(out, rec)
	}
	return out, dropped, nil
}

func parseRaw(r models.RawRecord) (models.Record, error) {
	ts, err := util.ParseTimestamp(r.Timestamp)
	if err != nil {
		return models.Record{}, err
	}
	rec := models.Record{
		AssetType:    r.AssetType,
		Timestamp:    ts,
		BidAskSpread: r.BidAskSpread,
		Volume:       r.Volume,
		BidPrice:     r.BidPrice,
	}
	for i, v := range rec.Features() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Record{}, fmt.Errorf("non-finite %s %v", models.FeatureNames[i], v)
		}
	}
	return rec, nil
}

func groupByAsset(records []models.Record) []models.AssetSeries {
	idx := make(map[string]int)
	var out []models.AssetSeries
	for _, r := range records {
		i, ok := idx[r.AssetType]
		if !ok {
			i = len(out)
			idx[r.AssetType] = i
			out = append(out, models.AssetSeries{AssetType: r.AssetType})
		}
		out[i].Records = append(out[i].Records, r)
	}
	for i := range out {
		out[i].Records = models.SortByTimestamp(out[i].Records)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].AssetType < out[b].AssetType })
	return out
}
