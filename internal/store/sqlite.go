package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/civimetric/robustness-cli/internal/robustness"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessment_runs (
	id              TEXT PRIMARY KEY,
	country_file    TEXT NOT NULL,
	party_file      TEXT,
	thresholds_file TEXT NOT NULL,
	weights         TEXT NOT NULL,
	row_count       INTEGER NOT NULL,
	band_counts     TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assessments (
	run_id           TEXT NOT NULL REFERENCES assessment_runs(id),
	iso3             TEXT NOT NULL,
	year             INTEGER NOT NULL,
	alignment        REAL,
	guardrails       REAL,
	mass             REAL,
	polarization     REAL,
	stress_norm      REAL,
	decline_norm     REAL,
	risk_score       REAL,
	risk_band        TEXT NOT NULL,
	guardrail_breach INTEGER NOT NULL,
	alignment_low    INTEGER NOT NULL,
	tipping_zone     INTEGER NOT NULL,
	percolation_risk INTEGER NOT NULL,
	shock_high       INTEGER NOT NULL,
	decline_high     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessment_runs_created_at ON assessment_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_run_id ON assessments(run_id);
CREATE INDEX IF NOT EXISTS idx_assessments_run_iso3 ON assessments(run_id, iso3);
CREATE INDEX IF NOT EXISTS idx_assessments_run_band ON assessments(run_id, risk_band);
`

const sqliteSelectRun = `SELECT id, country_file, party_file, thresholds_file, weights, row_count, band_counts, created_at FROM assessment_runs`

const sqliteSelectAssessment = `SELECT iso3, year, alignment, guardrails, mass, polarization, stress_norm, decline_norm, risk_score, risk_band, guardrail_breach, alignment_low, tipping_zone, percolation_risk, shock_high, decline_high FROM assessments`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, rows []robustness.Assessment) (*Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()
	run.RowCount = len(rows)
	run.BandCounts = countBands(rows)

	weightsJSON, err := json.Marshal(run.Weights)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal weights")
	}
	bandsJSON, err := json.Marshal(run.BandCounts)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal band counts")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO assessment_runs (id, country_file, party_file, thresholds_file, weights, row_count, band_counts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CountryFile, nullString(run.PartyFile), run.ThresholdsFile,
		string(weightsJSON), run.RowCount, string(bandsJSON), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO assessments (run_id, iso3, year, alignment, guardrails, mass, polarization, stress_norm, decline_norm, risk_score, risk_band, guardrail_breach, alignment_low, tipping_zone, percolation_risk, shock_high, decline_high)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert assessment")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, assessmentArgs(run.ID, r)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert assessment %s %d", r.ISO3, r.Year)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return &run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectRun+` WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectRun+` ORDER BY created_at DESC, id DESC LIMIT 1`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := sqliteSelectRun + ` ORDER BY created_at DESC, id DESC`
	var args []any

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) Assessments(ctx context.Context, runID string, filter AssessmentFilter) ([]robustness.Assessment, error) {
	query := sqliteSelectAssessment + ` WHERE run_id = ?`
	args := []any{runID}

	if filter.ISO3 != "" {
		query += ` AND iso3 = ?`
		args = append(args, filter.ISO3)
	}
	if filter.Year != 0 {
		query += ` AND year = ?`
		args = append(args, filter.Year)
	}
	if filter.Band != "" {
		query += ` AND risk_band = ?`
		args = append(args, filter.Band)
	}
	if filter.TippingOnly {
		query += ` AND tipping_zone = 1`
	}
	query += ` ORDER BY iso3, year`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: assessments for run %s", runID)
	}
	defer rows.Close()

	var out []robustness.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: assessments iterate")
}
