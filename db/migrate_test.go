package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpFiles(t *testing.T) {
	files, err := upFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"migration/000001_init_schema.up.sql"}, files)

	query, err := migrations.ReadFile(files[0])
	require.NoError(t, err)
	require.Contains(t, string(query), "accounts_balance_check")
}
