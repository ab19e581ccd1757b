package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRawCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("Country,Edition,Total\nHungary,2021,69\nGermany,2021,94\n"), 0o644))

	header, records, err := ReadRawCSV(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Country", "Edition", "Total"}, header)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Hungary", "2021", "69"}, records[0])
}

func TestReadRawCSV_RaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragged.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1,2\n1,2,3,4\n"), 0o644))

	_, records, err := ReadRawCSV(path, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[0], 2)
	assert.Len(t, records[1], 4)
}

func TestReadRawCSV_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, _, err := ReadRawCSV(path, ReadOptions{})
	assert.Error(t, err)
}

func TestLoadRaw_DispatchesOnExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("x\n1\n"), 0o644))

	header, records, err := LoadRaw(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, header)
	assert.Len(t, records, 1)
}
