package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/db"
	"github.com/civimetric/robustness-cli/internal/robustness"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const postgresSelectRun = `SELECT id, country_file, party_file, thresholds_file, weights, row_count, band_counts, created_at FROM assessment_runs`

const postgresSelectAssessment = `SELECT iso3, year, alignment, guardrails, mass, polarization, stress_norm, decline_norm, risk_score, risk_band, guardrail_breach, alignment_low, tipping_zone, percolation_risk, shock_high, decline_high FROM assessments`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_run":    postgresSelectRun + ` WHERE id = $1`,
	"latest_run": postgresSelectRun + ` ORDER BY created_at DESC, id DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessment_runs (
	id              TEXT PRIMARY KEY,
	country_file    TEXT NOT NULL,
	party_file      TEXT,
	thresholds_file TEXT NOT NULL,
	weights         JSONB NOT NULL,
	row_count       INTEGER NOT NULL,
	band_counts     JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assessments (
	run_id           TEXT NOT NULL REFERENCES assessment_runs(id),
	iso3             TEXT NOT NULL,
	year             INTEGER NOT NULL,
	alignment        DOUBLE PRECISION,
	guardrails       DOUBLE PRECISION,
	mass             DOUBLE PRECISION,
	polarization     DOUBLE PRECISION,
	stress_norm      DOUBLE PRECISION,
	decline_norm     DOUBLE PRECISION,
	risk_score       DOUBLE PRECISION,
	risk_band        TEXT NOT NULL,
	guardrail_breach BOOLEAN NOT NULL,
	alignment_low    BOOLEAN NOT NULL,
	tipping_zone     BOOLEAN NOT NULL,
	percolation_risk BOOLEAN NOT NULL,
	shock_high       BOOLEAN NOT NULL,
	decline_high     BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessment_runs_created_at ON assessment_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_run_id ON assessments(run_id);
CREATE INDEX IF NOT EXISTS idx_assessments_run_iso3 ON assessments(run_id, iso3);
CREATE INDEX IF NOT EXISTS idx_assessments_run_band ON assessments(run_id, risk_band);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run Run, rows []robustness.Assessment) (*Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()
	run.RowCount = len(rows)
	run.BandCounts = countBands(rows)

	weightsJSON, err := json.Marshal(run.Weights)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal weights")
	}
	bandsJSON, err := json.Marshal(run.BandCounts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal band counts")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO assessment_runs (id, country_file, party_file, thresholds_file, weights, row_count, band_counts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.CountryFile, nullString(run.PartyFile), run.ThresholdsFile,
		weightsJSON, run.RowCount, bandsJSON, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = assessmentArgs(run.ID, r)
	}
	if _, err := db.CopyFrom(ctx, tx, "assessments", assessmentColumns, copyRows); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit")
	}
	return &run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, postgresSelectRun+` WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, postgresSelectRun+` ORDER BY created_at DESC, id DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := postgresSelectRun + ` ORDER BY created_at DESC, id DESC`
	args := []any{}
	argIdx := 1

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) Assessments(ctx context.Context, runID string, filter AssessmentFilter) ([]robustness.Assessment, error) {
	query := postgresSelectAssessment + ` WHERE run_id = $1`
	args := []any{runID}
	argIdx := 2

	if filter.ISO3 != "" {
		query += fmt.Sprintf(` AND iso3 = $%d`, argIdx)
		args = append(args, filter.ISO3)
		argIdx++
	}
	if filter.Year != 0 {
		query += fmt.Sprintf(` AND year = $%d`, argIdx)
		args = append(args, filter.Year)
		argIdx++
	}
	if filter.Band != "" {
		query += fmt.Sprintf(` AND risk_band = $%d`, argIdx)
		args = append(args, filter.Band)
		argIdx++
	}
	if filter.TippingOnly {
		query += ` AND tipping_zone`
	}
	query += ` ORDER BY iso3, year`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: assessments for run %s", runID)
	}
	defer rows.Close()

	var out []robustness.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: assessments iterate")
}
