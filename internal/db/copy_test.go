package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "assessments", []string{"iso3", "year"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"assessments"}, []string{"iso3", "year"}).WillReturnResult(3)

	rows := [][]any{{"HUN", 2019}, {"HUN", 2020}, {"POL", 2020}}
	n, err := CopyFrom(context.Background(), mock, "assessments", []string{"iso3", "year"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"assessments"}, []string{"iso3"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"HUN"}}
	_, err = CopyFrom(context.Background(), mock, "assessments", []string{"iso3"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO assessments")
	assert.NoError(t, mock.ExpectationsWereMet())
}
