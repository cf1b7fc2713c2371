package foundation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
)

func dated(gridID int, panoID string, dist float64, year, month int) models.PanoRecord {
	return models.PanoRecord{
		GridID:    gridID,
		PanoID:    panoID,
		DistanceM: dist,
		Year:      models.IntPtr(year),
		Month:     models.IntPtr(month),
	}
}

func TestCleanMetadataKeepsNearest(t *testing.T) {
	in := []models.PanoRecord{
		dated(2, "B", 12, 2019, 3),
		dated(0, "A", 8, 2019, 3),
		dated(1, "A", 3, 2019, 3),
		dated(3, "B", 15, 2019, 3),
		{GridID: 4, PanoID: "C", DistanceM: 1}, // undated
		{GridID: 4, PanoID: "D", DistanceM: 1, Year: models.IntPtr(2020)},
		{GridID: 4, PanoID: "E", DistanceM: 1, Year: models.IntPtr(2020), Month: models.IntPtr(13)},
	}

	out, stats := CleanMetadata(in)
	require.Len(t, out, 2)

	assert.Equal(t, "A", out[0].PanoID)
	assert.Equal(t, 1, out[0].GridID)
	assert.Equal(t, "B", out[1].PanoID)
	assert.Equal(t, 2, out[1].GridID)

	assert.Equal(t, CleanStats{Input: 7, Undated: 3, Duplicates: 2, Output: 2}, stats)
}

func TestCleanMetadataUniqueAndMinimal(t *testing.T) {
	var in []models.PanoRecord
	for g := 0; g < 20; g++ {
		for p := 0; p < 5; p++ {
			id := string(rune('A' + (g+p)%7))
			in = append(in, dated(g, id, float64((g*7+p*3)%11), 2018, 1+p))
		}
	}

	out, _ := CleanMetadata(in)

	minDist := map[string]float64{}
	for _, r := range in {
		if d, ok := minDist[r.PanoID]; !ok || r.DistanceM < d {
			minDist[r.PanoID] = r.DistanceM
		}
	}

	seen := map[string]bool{}
	for _, r := range out {
		assert.False(t, seen[r.PanoID], "duplicate panoid %s", r.PanoID)
		seen[r.PanoID] = true
		assert.Equal(t, minDist[r.PanoID], r.DistanceM)
	}
	assert.Len(t, seen, len(minDist))
}

func TestCleanMetadataTieBreaksOnGridID(t *testing.T) {
	in := []models.PanoRecord{
		dated(5, "A", 4, 2020, 1),
		dated(2, "A", 4, 2021, 1),
		dated(2, "A", 4, 2022, 1),
	}

	out, _ := CleanMetadata(in)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].GridID)
	assert.Equal(t, 2021, *out[0].Year)
}

func TestCleanMetadataDoesNotMutateInput(t *testing.T) {
	in := []models.PanoRecord{dated(3, "B", 1, 2020, 1), dated(1, "A", 1, 2020, 1)}
	snapshot := append([]models.PanoRecord(nil), in...)

	CleanMetadata(in)
	assert.Equal(t, snapshot, in)
}

func TestCleanMetadataEmpty(t *testing.T) {
	out, stats := CleanMetadata(nil)
	assert.Empty(t, out)
	assert.Equal(t, CleanStats{}, stats)
}

func TestMetadataCleanStep(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		MetadataPath: filepath.Join(dir, "raw.csv"),
		CleanedPath:  filepath.Join(dir, "cleaned.csv"),
	}
	raw := repository.NewMetadataFileRepository(cfg.MetadataPath)
	require.NoError(t, raw.Append([]models.PanoRecord{
		dated(0, "A", 9, 2019, 3),
		dated(1, "A", 2, 2019, 3),
		{GridID: 1, PanoID: "U"},
	}))

	step, err := NewMetadataCleanStep(cfg, nil)
	require.NoError(t, err)
	p, err := step.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Processed)
	assert.Equal(t, 3, p.Total)

	cleaned, err := repository.NewMetadataFileRepository(cfg.CleanedPath).Load()
	require.NoError(t, err)
	require.Len(t, cleaned, 1)
	assert.Equal(t, 1, cleaned[0].GridID)
}
