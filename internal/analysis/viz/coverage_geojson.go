package viz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/spatial"
)

// BuildCoverageGeoJSON renders every summarised cell as a square polygon of
// side spacingM carrying its coverage metrics. Cells without a summary are
// left out. tags may be nil.
func BuildCoverageGeoJSON(cells []models.GridCell, summaries []models.GridTemporalSummary, tags []models.GridTags, spacingM float64) *geojson.FeatureCollection {
	bySummary := make(map[int]models.GridTemporalSummary, len(summaries))
	for _, s := range summaries {
		bySummary[s.GridID] = s
	}
	byTags := make(map[int]models.GridTags, len(tags))
	for _, t := range tags {
		byTags[t.GridID] = t
	}

	fc := geojson.NewFeatureCollection()
	for _, cell := range cells {
		s, ok := bySummary[cell.GridID]
		if !ok {
			continue
		}

		square := spatial.SquareAround(cell.Lat, cell.Lon, spacingM/2)
		f := geojson.NewFeature(square.ToPolygon())
		f.Properties["grid_id"] = cell.GridID
		f.Properties["n_dates"] = s.NDates
		f.Properties["n_panos"] = s.NPanos
		f.Properties["first_date"] = optString(s.FirstDate)
		f.Properties["latest_date"] = optString(s.LatestDate)
		f.Properties["span_months"] = optInt(s.SpanMonths)
		f.Properties["recency_months"] = optInt(s.RecencyMonths)
		f.Properties["max_gap_months"] = optInt(s.MaxGapMonths)

		if t, ok := byTags[cell.GridID]; ok {
			f.Properties["road_type"] = t.RoadType
			if t.GridHighway != "" {
				f.Properties["grid_highway"] = t.GridHighway
			}
		}
		fc.Append(f)
	}
	return fc
}

// nil pointers become JSON null
func optInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// WriteFeatureCollection marshals fc to path
func WriteFeatureCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write geojson: %w", err)
	}
	return nil
}

// CoverageExportStep writes the per-cell coverage map
// Skill: 覆盖地图导出 (Coverage Map Export)
type CoverageExportStep struct {
	path    string
	spacing float64
	grid    *repository.GridFileRepository
	summary *repository.SummaryFileRepository
	tags    *repository.TagsFileRepository
}

// NewCoverageExportStep creates a new export step
func NewCoverageExportStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	if cfg.GridSpacingM <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %v", cfg.GridSpacingM)
	}
	return &CoverageExportStep{
		path:    cfg.GeoJSONPath,
		spacing: cfg.GridSpacingM,
		grid:    repository.NewGridFileRepository(cfg.GridPath),
		summary: repository.NewSummaryFileRepository(cfg.SummaryPath),
		tags:    repository.NewTagsFileRepository(cfg.TagsPath),
	}, nil
}

// GetName returns the step name
func (s *CoverageExportStep) GetName() string {
	return "export"
}

// Run joins grid, summary and tags and writes a FeatureCollection
func (s *CoverageExportStep) Run(ctx context.Context) (*analysis.Progress, error) {
	cells, err := s.grid.Load()
	if err != nil {
		return nil, err
	}
	summaries, err := s.summary.Load()
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.Load()
	if errors.Is(err, fs.ErrNotExist) {
		tags = nil
	} else if err != nil {
		return nil, err
	}

	fc := BuildCoverageGeoJSON(cells, summaries, tags, s.spacing)
	if err := WriteFeatureCollection(s.path, fc); err != nil {
		return nil, err
	}
	log.Printf("[CoverageExport] Wrote %d features to %s", len(fc.Features), s.path)

	return &analysis.Progress{
		Processed: len(fc.Features),
		Total:     len(cells),
		Message:   fmt.Sprintf("%d features written", len(fc.Features)),
	}, nil
}

func init() {
	analysis.RegisterStep("export", NewCoverageExportStep)
}
