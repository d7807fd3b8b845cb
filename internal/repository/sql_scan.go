package repository

import (
	"fmt"
	"regexp"

	"FinCast/internal/domain/models"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkIdent rejects table names that would need quoting.
func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return &models.DataSourceError{Op: "config", Err: fmt.Errorf("invalid table name %q", name)}
	}
	return nil
}

// rowScanner is satisfied by *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanRawRecords reads rows of (asset_type, timestamp text, spread, volume,
// bid) and numbers them from 1.
func scanRawRecords(rows rowScanner) ([]models.RawRecord, error) {
	out := make([]models.RawRecord, 0, 1024)
	for rows.Next() {
		r := models.RawRecord{Row: len(out) + 1}
		if err := rows.Scan(&r.AssetType, &r.Timestamp, &r.BidAskSpread, &r.Volume, &r.BidPrice); err != nil {
			return nil, fmt.Errorf("scan record %d: %w", r.Row, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
