package stats

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
)

func summary(gridID, nDates, nPanos, recency int) models.GridTemporalSummary {
	s := models.GridTemporalSummary{GridID: gridID, NDates: nDates, NPanos: nPanos}
	if nDates > 0 {
		s.RecencyMonths = models.IntPtr(recency)
		s.SpanMonths = models.IntPtr(nDates * 6)
	}
	if nDates > 1 {
		s.MaxGapMonths = models.IntPtr(12)
	}
	return s
}

// Six cells: 0-3 covered, 4 has only undated panoramas, 5 has no summary.
func sampleSummaries() []models.GridTemporalSummary {
	return []models.GridTemporalSummary{
		summary(0, 1, 1, 0),
		summary(1, 2, 3, 5),
		summary(2, 3, 4, 10),
		summary(3, 10, 12, 40),
		summary(4, 0, 2, 0),
	}
}

func sampleTags() []models.GridTags {
	return []models.GridTags{
		{GridID: 0, RoadType: models.RoadTypeDrivable},
		{GridID: 1, RoadType: models.RoadTypeDrivable},
		{GridID: 2, RoadType: models.RoadTypeNonDrivable},
		{GridID: 3, RoadType: models.RoadTypeNoRoad},
		{GridID: 4, RoadType: models.RoadTypeNoRoad},
		{GridID: 5, RoadType: models.RoadTypeNoRoad},
	}
}

func TestBuildCoverageReportTotals(t *testing.T) {
	r := BuildCoverageReport(6, sampleSummaries(), nil)

	assert.Equal(t, 6, r.GridCells)
	assert.Equal(t, 4, r.CoveredCells)
	assert.InDelta(t, 4.0/6.0, r.CoverageRatio, 1e-12)
	assert.Nil(t, r.RoadTypes)

	nd := r.Metrics["n_dates"]
	assert.Equal(t, 4, nd.Count)
	assert.InDelta(t, 4.0, nd.Mean, 1e-12)
	assert.Equal(t, 1.0, nd.Min)
	assert.InDelta(t, 2.5, nd.Median, 1e-12)
	assert.Equal(t, 10.0, nd.Max)

	// n_panos includes the undated cell
	assert.Equal(t, 5, r.Metrics["n_panos"].Count)
	// max gap is null for the single-month cell
	assert.Equal(t, 3, r.Metrics["max_gap_months"].Count)
}

func TestBuildCoverageReportHistogram(t *testing.T) {
	r := BuildCoverageReport(6, sampleSummaries(), nil)

	assert.Equal(t, []HistogramBin{
		{NDates: 0, Cells: 2},
		{NDates: 1, Cells: 1},
		{NDates: 2, Cells: 1},
		{NDates: 3, Cells: 1},
		{NDates: 10, Cells: 1},
	}, r.NDatesHistogram)
}

func TestBuildCoverageReportQuadrants(t *testing.T) {
	r := BuildCoverageReport(6, sampleSummaries(), nil)

	// n_dates Q1=1.75 Q3=4.75, recency Q1=3.75 Q3=17.5
	assert.Equal(t, []int{3}, r.HighFrequencyOld)
	assert.Equal(t, []int{0}, r.LowFrequencyNew)

	assert.Equal(t, 4, r.NDatesVsRecency.Pairs)
	assert.Greater(t, r.NDatesVsRecency.Pearson, 0.9)
	assert.InDelta(t, 1.0, r.NDatesVsRecency.Spearman, 1e-12)
}

func TestBuildCoverageReportRoadTypes(t *testing.T) {
	r := BuildCoverageReport(6, sampleSummaries(), sampleTags())
	require.Len(t, r.RoadTypes, 3)

	drivable := r.RoadTypes[0]
	assert.Equal(t, models.RoadTypeDrivable, drivable.RoadType)
	assert.Equal(t, 2, drivable.Cells)
	assert.Equal(t, 2, drivable.CoveredCells)
	assert.InDelta(t, 1.0, drivable.CoverageRatio, 1e-12)
	assert.InDelta(t, 1.5, *drivable.MeanNDates, 1e-12)
	assert.InDelta(t, 2.5, *drivable.MeanRecency, 1e-12)

	assert.Equal(t, models.RoadTypeNonDrivable, r.RoadTypes[1].RoadType)

	noRoad := r.RoadTypes[2]
	assert.Equal(t, models.RoadTypeNoRoad, noRoad.RoadType)
	assert.Equal(t, 3, noRoad.Cells)
	assert.Equal(t, 1, noRoad.CoveredCells)
	assert.InDelta(t, 1.0/3.0, noRoad.CoverageRatio, 1e-12)
}

func TestBuildCoverageReportEmpty(t *testing.T) {
	r := BuildCoverageReport(0, nil, nil)

	assert.Zero(t, r.CoverageRatio)
	assert.Empty(t, r.NDatesHistogram)
	assert.Empty(t, r.HighFrequencyOld)
	assert.Empty(t, r.LowFrequencyNew)
	assert.Zero(t, r.Metrics["n_dates"].Count)
}

func TestCoverageReportStep(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		GridPath:    filepath.Join(dir, "grid.csv"),
		SummaryPath: filepath.Join(dir, "summary.csv"),
		TagsPath:    filepath.Join(dir, "missing_tags.csv"),
		ReportPath:  filepath.Join(dir, "out", "report.json"),
	}

	cells := make([]models.GridCell, 6)
	for i := range cells {
		cells[i] = models.GridCell{GridID: i, Lat: 1, Lon: float64(i)}
	}
	require.NoError(t, repository.NewGridFileRepository(cfg.GridPath).Save(cells))
	require.NoError(t, repository.NewSummaryFileRepository(cfg.SummaryPath).Save(sampleSummaries()))

	step, err := NewCoverageReportStep(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "report", step.GetName())

	progress, err := step.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, progress.Processed)
	assert.Equal(t, 6, progress.Total)

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)

	var got CoverageReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 4, got.CoveredCells)
	assert.Equal(t, []int{3}, got.HighFrequencyOld)
	assert.Empty(t, got.RoadTypes)
}
