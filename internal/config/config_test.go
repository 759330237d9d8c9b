package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsWithoutDatabaseDSN(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database dsn is required")
}

func TestLoadAppliesEnvOverridesOverDefaults(t *testing.T) {
	t.Setenv("CORI_DATABASE_DSN", "postgres://localhost/cori")
	t.Setenv("CORI_TRANSPORT", "http")
	t.Setenv("CORI_PORT", "9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/cori", cfg.Database.DSN)
	assert.Equal(t, "http", cfg.Transport.Mode)
	assert.Equal(t, "9000", cfg.Transport.Port)
}

func TestLoadRejectsUnknownTransportMode(t *testing.T) {
	t.Setenv("CORI_DATABASE_DSN", "postgres://localhost/cori")
	t.Setenv("CORI_TRANSPORT", "carrier-pigeon")

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transport mode")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cori.toml")
	contents := `
[database]
dsn = "postgres://localhost/cori"

[token]
default_ttl = "30m"

[transport]
mode = "http"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/cori", cfg.Database.DSN)
	assert.Equal(t, "http", cfg.Transport.Mode)
}
