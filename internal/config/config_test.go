package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SVI_DATA_DIR", "/tmp/svi")

	cfg := Load()

	assert.Equal(t, filepath.Join("/tmp/svi", "results", "grid_20m.csv"), cfg.GridPath)
	assert.Equal(t, 20.0, cfg.GridSpacingM)
	assert.Equal(t, 10.0, cfg.CellHalfWidthM)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, ProviderFormatPanoids, cfg.ProviderFormat)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 20.0, cfg.APIRateLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SVI_BATCH_SIZE", "10")
	t.Setenv("SVI_GRID_SPACING_M", "25.5")
	t.Setenv("SVI_PROVIDER_TIMEOUT", "5s")
	t.Setenv("SVI_PROVIDER_FORMAT", ProviderFormatGoogle)
	t.Setenv("SVI_METADATA_PATH", "/data/meta.csv")

	cfg := Load()

	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 25.5, cfg.GridSpacingM)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "/data/meta.csv", cfg.MetadataPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadIgnoresUnparsableNumbers(t *testing.T) {
	t.Setenv("SVI_BATCH_SIZE", "fifty")

	cfg := Load()

	assert.Equal(t, 50, cfg.BatchSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Load()
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.ProviderFormat = "bing"
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.GridSpacingM = -1
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.APIRateLimit = -1
	assert.Error(t, cfg.Validate())
}
