// Package postgres persists attribution run reports. The full report is
// stored as JSON alongside a flat city table for SQL-side inspection.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/ports"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS attribution_runs (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	estimator  TEXT NOT NULL,
	ci_mode    TEXT NOT NULL,
	report     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS city_attribution (
	run_id             TEXT NOT NULL REFERENCES attribution_runs(id) ON DELETE CASCADE,
	city               TEXT NOT NULL,
	flood_weeks        INTEGER NOT NULL,
	total_cases        DOUBLE PRECISION NOT NULL,
	paf                DOUBLE PRECISION NOT NULL,
	paf_lower          DOUBLE PRECISION NOT NULL,
	paf_upper          DOUBLE PRECISION NOT NULL,
	attributable       DOUBLE PRECISION NOT NULL,
	attributable_lower DOUBLE PRECISION NOT NULL,
	attributable_upper DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, city)
);
`

// Ledger implements ports.LedgerPort over PostgreSQL.
type Ledger struct {
	db *sqlx.DB
}

// NewLedger creates a ledger over an open connection.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, url string) (*Ledger, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	l := NewLedger(db)
	if err := l.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Migrate applies the ledger schema.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying ledger schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveReport stores the full report and its flat city rows in one transaction.
func (l *Ledger) SaveReport(ctx context.Context, report *attrib.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attribution_runs (id, created_at, estimator, ci_mode, report)
		 VALUES ($1, $2, $3, $4, $5)`,
		report.RunID.String(), report.CreatedAt.Time(), string(report.Estimator),
		string(report.CIMode), payload,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i := range report.Cities {
		c := &report.Cities[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO city_attribution (
				run_id, city, flood_weeks, total_cases,
				paf, paf_lower, paf_upper,
				attributable, attributable_lower, attributable_upper
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			report.RunID.String(), c.City.String(), c.FloodWeeks, c.TotalCases,
			c.PAF.Point, c.PAF.Lower, c.PAF.Upper,
			c.AttributableCases.Point, c.AttributableCases.Lower, c.AttributableCases.Upper,
		)
		if err != nil {
			return fmt.Errorf("inserting city %s: %w", c.City, err)
		}
	}

	return tx.Commit()
}

// GetReport loads one run report by ID.
func (l *Ledger) GetReport(ctx context.Context, id core.RunID) (*attrib.RunReport, error) {
	var payload []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT report FROM attribution_runs WHERE id = $1`, id.String(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	var report attrib.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", id, err)
	}
	return &report, nil
}

// LatestReport loads the most recently created run report.
func (l *Ledger) LatestReport(ctx context.Context) (*attrib.RunReport, error) {
	var payload []byte
	err := l.db.QueryRowContext(ctx,
		`SELECT report FROM attribution_runs ORDER BY created_at DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no runs recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest run: %w", err)
	}
	var report attrib.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling latest run: %w", err)
	}
	return &report, nil
}

// ListRuns returns the most recent run IDs, newest first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]core.RunID, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id FROM attribution_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, core.RunID(id))
	}
	return out, rows.Err()
}

var _ ports.LedgerPort = (*Ledger)(nil)
