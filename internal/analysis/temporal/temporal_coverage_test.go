package temporal

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

func rec(gridID int, panoID string, year, month int) models.PanoRecord {
	return models.PanoRecord{GridID: gridID, PanoID: panoID, Year: models.IntPtr(year), Month: models.IntPtr(month)}
}

func TestAggregateCoverageExample(t *testing.T) {
	records := []models.PanoRecord{
		rec(0, "a", 2019, 3),
		rec(0, "b", 2019, 3),
		rec(0, "c", 2021, 7),
	}

	out := AggregateCoverage(records)
	require.Len(t, out, 1)
	s := out[0]

	assert.Equal(t, 2, s.NDates)
	assert.Equal(t, 3, s.NPanos)
	assert.Equal(t, 28, *s.SpanMonths)
	assert.Equal(t, 28, *s.MaxGapMonths)
	assert.Equal(t, 0, *s.RecencyMonths)
	assert.Equal(t, "2019-03", *s.FirstDate)
	assert.Equal(t, "2021-07", *s.LatestDate)
}

func TestAggregateCoverageRecencyIsGlobal(t *testing.T) {
	records := []models.PanoRecord{
		rec(3, "x", 2015, 1),
		rec(1, "y", 2020, 1),
		rec(1, "z", 2018, 6),
		rec(1, "w", 2016, 1),
	}

	out := AggregateCoverage(records)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].GridID)
	assert.Equal(t, 3, out[1].GridID)

	assert.Equal(t, 0, *out[0].RecencyMonths)
	assert.Equal(t, 60, *out[1].RecencyMonths)
	assert.Equal(t, 48, *out[0].SpanMonths)
	assert.Equal(t, 29, *out[0].MaxGapMonths)

	// Span covers the largest gap; recency is never negative
	for _, s := range out {
		assert.GreaterOrEqual(t, *s.RecencyMonths, 0)
		if s.MaxGapMonths != nil {
			assert.GreaterOrEqual(t, *s.SpanMonths, *s.MaxGapMonths)
		}
	}
}

func TestAggregateCoverageSingleDate(t *testing.T) {
	out := AggregateCoverage([]models.PanoRecord{rec(5, "a", 2020, 2), rec(5, "b", 2020, 2)})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].NDates)
	assert.Equal(t, 0, *out[0].SpanMonths)
	assert.Nil(t, out[0].MaxGapMonths)
}

func TestAggregateCoverageUndatedGroup(t *testing.T) {
	records := []models.PanoRecord{
		{GridID: 2, PanoID: "a"},
		{GridID: 2, PanoID: "b", Year: models.IntPtr(2020)},
		{GridID: 2, PanoID: "a"},
		rec(4, "c", 2020, 1),
	}

	out := AggregateCoverage(records)
	require.Len(t, out, 2)
	s := out[0]
	assert.Equal(t, 2, s.GridID)
	assert.Equal(t, 0, s.NDates)
	assert.Equal(t, 2, s.NPanos)
	assert.Nil(t, s.FirstDate)
	assert.Nil(t, s.LatestDate)
	assert.Nil(t, s.SpanMonths)
	assert.Nil(t, s.RecencyMonths)
	assert.Nil(t, s.MaxGapMonths)
}

func TestAggregateCoverageIsPure(t *testing.T) {
	records := []models.PanoRecord{rec(1, "b", 2021, 1), rec(0, "a", 2019, 5)}
	snapshot := append([]models.PanoRecord(nil), records...)

	first := AggregateCoverage(records)
	second := AggregateCoverage(records)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, records)
	assert.Empty(t, AggregateCoverage(nil))
}

func TestTemporalCoverageStep(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		CleanedPath: filepath.Join(dir, "cleaned.csv"),
		SummaryPath: filepath.Join(dir, "summary.csv"),
	}
	require.NoError(t, repository.NewMetadataFileRepository(cfg.CleanedPath).Save([]models.PanoRecord{
		rec(0, "a", 2019, 3),
		rec(0, "b", 2021, 7),
		rec(1, "c", 2020, 1),
	}))

	step, err := NewTemporalCoverageStep(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "aggregate", step.GetName())

	p, err := step.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.Processed)

	summaries, err := repository.NewSummaryFileRepository(cfg.SummaryPath).Load()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 28, *summaries[0].SpanMonths)
	assert.Equal(t, 18, *summaries[1].RecencyMonths)
}
