package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"

	"github.com/parquet-go/parquet-go"
)

// File formats understood by FileRecordSource.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// FileRecordSource reads records from a CSV or Parquet file. The file is
// re-read on every call so an updated export is picked up without restart.
type FileRecordSource struct {
	path   string
	format string
	l      *applogger.Logger
}

func NewFileRecordSource(path, format string) (*FileRecordSource, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if format != FormatCSV && format != FormatParquet {
		return nil, &models.DataSourceError{Op: "config", Err: fmt.Errorf("unsupported file format %q", format)}
	}
	return &FileRecordSource{path: path, format: format, l: applogger.Nop()}, nil
}

// SetLogger injects a structured logger.
func (s *FileRecordSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *FileRecordSource) Name() string { return s.format + ":" + filepath.Base(s.path) }

func (s *FileRecordSource) Columns(ctx context.Context) ([]string, error) {
	if s.format == FormatCSV {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.path, err)
		}
		defer f.Close()
		header, err := csv.NewReader(f).Read()
		if err != nil {
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		return header, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	fields := pf.Schema().Fields()
	cols := make([]string, len(fields))
	for i, fld := range fields {
		cols[i] = fld.Name()
	}
	return cols, nil
}

func (s *FileRecordSource) Fetch(ctx context.Context, asset string) ([]models.RawRecord, error) {
	var (
		rows []models.RawRecord
		err  error
	)
	if s.format == FormatCSV {
		rows, err = s.readCSV()
	} else {
		rows, err = parquet.ReadFile[models.RawRecord](s.path)
		for i := range rows {
			rows[i].Row = i + 1
		}
	}
	if err != nil {
		s.l.Error("file fetch error", applogger.String("path", s.path), applogger.Error(err))
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if asset == "" {
		return rows, nil
	}
	kept := rows[:0]
	for _, r := range rows {
		if r.AssetType == asset {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// readCSV maps columns by header name. Unparsable numbers become NaN so the
// loader's row policy decides whether they fail the load.
func (s *FileRecordSource) readCSV() ([]models.RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(rec []string, col string) float64 {
		v, err := strconv.ParseFloat(field(rec, col), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	var out []models.RawRecord
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", len(out)+1, err)
		}
		out = append(out, models.RawRecord{
			Row:          len(out) + 1,
			AssetType:    field(rec, models.ColAssetType),
			Timestamp:    field(rec, models.ColTimestamp),
			BidAskSpread: num(rec, models.ColBidAskSpread),
			Volume:       num(rec, models.ColVolume),
			BidPrice:     num(rec, models.ColBidPrice),
		})
	}
	return out, nil
}

func (s *FileRecordSource) Health(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

func (s *FileRecordSource) Close() error { return nil }

// WriteParquet exports records to path with timestamps in RFC 3339.
func WriteParquet(path string, series []models.AssetSeries) error {
	var rows []models.RawRecord
	for _, s := range series {
		for _, r := range s.Records {
			rows = append(rows, models.RawRecord{
				AssetType:    r.AssetType,
				Timestamp:    r.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
				BidAskSpread: r.BidAskSpread,
				Volume:       r.Volume,
				BidPrice:     r.BidPrice,
			})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, rows)
}
