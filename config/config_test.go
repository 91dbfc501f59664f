package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_HasSaneValues(t *testing.T) {
	cfg := Default()
	require.Greater(t, cfg.Worker.NumWorkers, 0)
	require.Greater(t, cfg.Sealing.MaxNumStagedSectors, 0)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Worker.NumWorkers = 7
	cfg.Sealing.WaitForSealTimeout = Duration(90 * time.Second)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, loaded.Worker.NumWorkers)
	require.Equal(t, 90*time.Second, time.Duration(loaded.Sealing.WaitForSealTimeout))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}
