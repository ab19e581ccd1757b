package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM assessment_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRun_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM assessment_runs ORDER BY created_at DESC, id DESC LIMIT 1`).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rows := sampleAssessments()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO assessment_runs`).
		WithArgs(pgxmock.AnyArg(), "data/vdem.csv", "data/vparty.csv", "data/output/robustness_thresholds.json",
			pgxmock.AnyArg(), 3, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"assessments"}, assessmentColumns).
		WillReturnResult(int64(len(rows)))
	mock.ExpectCommit()

	saved, err := s.SaveRun(context.Background(), sampleRun(), rows)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 3, saved.RowCount)
	assert.Equal(t, map[string]int{"high": 2, "medium": 1}, saved.BandCounts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_InsertError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO assessment_runs`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.SaveRun(context.Background(), sampleRun(), sampleAssessments())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_AppliesPagination(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM assessment_runs ORDER BY created_at DESC, id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(25, 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "country_file", "party_file", "thresholds_file",
			"weights", "row_count", "band_counts", "created_at",
		}))

	runs, err := s.ListRuns(context.Background(), RunFilter{Limit: 25, Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Assessments_BuildsFilters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM assessments WHERE run_id = \$1 AND iso3 = \$2 AND year = \$3 AND risk_band = \$4 AND tipping_zone ORDER BY iso3, year LIMIT \$5`).
		WithArgs("run-1", "HUN", 2020, "high", 10).
		WillReturnRows(pgxmock.NewRows(assessmentColumns[1:]))

	got, err := s.Assessments(context.Background(), "run-1", AssessmentFilter{
		ISO3: "HUN", Year: 2020, Band: "high", TippingOnly: true, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
