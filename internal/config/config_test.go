package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, 9981, cfg.Server.Port)
	require.Equal(t, "pumpkin.db", cfg.Storage.Path)
	require.Equal(t, 126, cfg.Storage.MaxReaders)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpkindb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 7777

[storage]
path = "/data/pumpkin.db"
maxreaders = 64
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Server.Port)
	require.Equal(t, "/data/pumpkin.db", cfg.Storage.Path)
	require.Equal(t, 64, cfg.Storage.MaxReaders)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpkindb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 7777
`), 0o644))

	t.Setenv("PUMPKINDB_SERVER_PORT", "4242")
	t.Setenv("PUMPKINDB_STORAGE_MAXREADERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4242, cfg.Server.Port)
	require.Equal(t, 8, cfg.Storage.MaxReaders)
}
