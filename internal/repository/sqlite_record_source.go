package repository

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqliteRecord is the row layout of the records table in a local database.
type sqliteRecord struct {
	ID           uint    `gorm:"primaryKey"`
	AssetType    string  `gorm:"column:asset_type;index"`
	Timestamp    string  `gorm:"column:timestamp;index"`
	BidAskSpread float64 `gorm:"column:bid_ask_spread"`
	Volume       float64 `gorm:"column:volume"`
	BidPrice     float64 `gorm:"column:bid_price"`
}

// SQLiteRecordSource reads market records from a local SQLite database.
type SQLiteRecordSource struct {
	db    *gorm.DB
	table string
	l     *applogger.Logger
}

func NewSQLiteRecordSource(path, table string) (*SQLiteRecordSource, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteRecordSource{db: db, table: table, l: applogger.Nop()}, nil
}

// SetLogger injects a structured logger.
func (s *SQLiteRecordSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *SQLiteRecordSource) Name() string { return "sqlite:" + s.table }

// Migrate creates the records table when it does not exist.
func (s *SQLiteRecordSource) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.table).AutoMigrate(&sqliteRecord{})
}

// Import inserts raw rows in batches. Timestamps are stored as given.
func (s *SQLiteRecordSource) Import(ctx context.Context, rows []models.RawRecord) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]sqliteRecord, len(rows))
	for i, r := range rows {
		batch[i] = sqliteRecord{
			AssetType:    r.AssetType,
			Timestamp:    r.Timestamp,
			BidAskSpread: r.BidAskSpread,
			Volume:       r.Volume,
			BidPrice:     r.BidPrice,
		}
	}
	if err := s.db.WithContext(ctx).Table(s.table).CreateInBatches(batch, 500).Error; err != nil {
		return fmt.Errorf("import records: %w", err)
	}
	return nil
}

func (s *SQLiteRecordSource) Columns(ctx context.Context) ([]string, error) {
	m := s.db.WithContext(ctx).Migrator()
	if !m.HasTable(s.table) {
		return nil, &models.DataSourceError{Op: "schema", Err: fmt.Errorf("table %s does not exist", s.table)}
	}
	types, err := m.ColumnTypes(s.table)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	cols := make([]string, len(types))
	for i, ct := range types {
		cols[i] = ct.Name()
	}
	return cols, nil
}

func (s *SQLiteRecordSource) Fetch(ctx context.Context, asset string) ([]models.RawRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT asset_type, CAST(timestamp AS TEXT), bid_ask_spread, volume, bid_price FROM %s`, s.table)
	var args []any
	if asset != "" {
		q += ` WHERE asset_type = ?`
		args = append(args, asset)
	}
	q += ` ORDER BY rowid`

	rows, err := s.db.WithContext(ctx).Raw(q, args...).Rows()
	if err != nil {
		s.l.Error("sqlite fetch query error",
			applogger.String("table", s.table),
			applogger.String("asset", asset),
			applogger.Error(err))
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()

	out, err := scanRawRecords(rows)
	if err != nil {
		return nil, err
	}
	s.l.Debug("sqlite fetch ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *SQLiteRecordSource) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteRecordSource) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
