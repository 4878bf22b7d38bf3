package configpkg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := "DB_DRIVER=postgres\nLEDGER_MAX_ATTEMPTS=3\nLEDGER_LOCK_TIMEOUT=500ms\nKAFKA_BROKERS=a:9092, b:9092\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600))

	c, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, DriverPostgres, c.DBDriver)
	require.Equal(t, 3, c.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, c.LockTimeout)
	require.Equal(t, 10*time.Millisecond, c.RetryBackoff)
	require.Equal(t, "ledger_events", c.KafkaTopic)
	require.Equal(t, []string{"a:9092", "b:9092"}, c.Brokers())
}

func TestLoadWithoutFile(t *testing.T) {
	c, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, DriverMemory, c.DBDriver)
	require.Equal(t, 5, c.MaxAttempts)
	require.Equal(t, 2*time.Second, c.LockTimeout)
	require.Empty(t, c.Brokers())
}
