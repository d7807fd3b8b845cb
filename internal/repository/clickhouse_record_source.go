package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
)

// CHRecordSource reads market records from a ClickHouse table.
type CHRecordSource struct {
	client   *pkgch.Client
	db       *sql.DB
	database string
	table    string
	l        *applogger.Logger
}

func NewCHRecordSource(ch *pkgch.Client, table string) (*CHRecordSource, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	return &CHRecordSource{client: ch, db: ch.DB(), database: ch.Database(), table: table, l: applogger.Nop()}, nil
}

// SetLogger injects a structured logger.
func (s *CHRecordSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHRecordSource) Name() string { return "clickhouse:" + s.table }

func (s *CHRecordSource) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM system.columns WHERE database = ? AND table = ? ORDER BY position`,
		s.database, s.table)
	if err != nil {
		s.l.Error("clickhouse columns query error", applogger.String("table", s.table), applogger.Error(err))
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

func (s *CHRecordSource) Fetch(ctx context.Context, asset string) ([]models.RawRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT asset_type, toString(timestamp), bid_ask_spread, volume, bid_price
        FROM %s.%s`, s.database, s.table)
	var args []any
	if asset != "" {
		q += " WHERE asset_type = ?"
		args = append(args, asset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse fetch query error",
			applogger.String("table", s.table),
			applogger.String("asset", asset),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()

	out, err := scanRawRecords(rows)
	if err != nil {
		s.l.Error("clickhouse fetch scan error",
			applogger.String("table", s.table),
			applogger.String("asset", asset),
			applogger.Error(err),
		)
		return nil, err
	}

	s.l.Debug("clickhouse fetch ok",
		applogger.String("table", s.table),
		applogger.String("asset", asset),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHRecordSource) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *CHRecordSource) Close() error { return s.client.Close() }
