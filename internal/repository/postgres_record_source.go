package repository

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the subset of *pgxpool.Pool the record source needs.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PGRecordSource reads market records from a PostgreSQL table.
type PGRecordSource struct {
	pool  pgxQuerier
	table string
	l     *applogger.Logger
}

// NewPGRecordSource opens a pool for dsn. maxConns <= 0 keeps the pgx default.
func NewPGRecordSource(ctx context.Context, dsn, table string, maxConns int32) (*PGRecordSource, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return newPGRecordSource(pool, table), nil
}

func newPGRecordSource(pool pgxQuerier, table string) *PGRecordSource {
	return &PGRecordSource{pool: pool, table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *PGRecordSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *PGRecordSource) Name() string { return "postgres:" + s.table }

const pgColumnsQuery = `SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`

func (s *PGRecordSource) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, pgColumnsQuery, s.table)
	if err != nil {
		s.l.Error("postgres columns query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return cols, nil
}

func (s *PGRecordSource) Fetch(ctx context.Context, asset string) ([]models.RawRecord, error) {
	start := time.Now()
	q := `SELECT asset_type, timestamp::text, bid_ask_spread, volume, bid_price FROM ` +
		pgx.Identifier{s.table}.Sanitize()
	var args []any
	if asset != "" {
		q += ` WHERE asset_type = $1`
		args = append(args, asset)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		s.l.Error("postgres fetch query error",
			applogger.String("table", s.table),
			applogger.String("asset", asset),
			applogger.Error(err))
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()

	out, err := scanRawRecords(rows)
	if err != nil {
		s.l.Error("postgres fetch scan error",
			applogger.String("table", s.table),
			applogger.Error(err))
		return nil, err
	}

	s.l.Debug("postgres fetch ok",
		applogger.String("table", s.table),
		applogger.String("asset", asset),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *PGRecordSource) Health(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PGRecordSource) Close() error {
	s.pool.Close()
	return nil
}
