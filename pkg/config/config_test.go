package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Equal(t, 8192, cfg.PageSize)
	require.Equal(t, config.SyncBatch, cfg.WALSyncMode)
}

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nervusdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wal_sync_mode: immediate\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.SyncImmediate, cfg.WALSyncMode)
	require.Equal(t, 8192, cfg.PageSize)
	require.Equal(t, 4096, cfg.BlobInlineThreshold)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/nervusdb.yaml")
	require.Error(t, err)
}
