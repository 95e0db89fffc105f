package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromNamedEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "custom.env")
	contents := "DATABASE_URL=postgres://test\nPORT=9191\nLOG_LEVEL=warn\n"
	require.NoError(t, os.WriteFile(envFile, []byte(contents), 0o600))

	cfg, err := LoadFrom(envFile)
	require.NoError(t, err)

	assert.Equal(t, "postgres://test", cfg.Database.URL)
	assert.Equal(t, "9191", cfg.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFromMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
}
