package spatial

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/spatial"
)

// LoadBoundary reads a GeoJSON boundary and merges every polygonal member into one MultiPolygon
func LoadBoundary(path string) (orb.MultiPolygon, error) {
	features, err := spatial.ReadFeatures(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load boundary: %w", err)
	}

	var boundary orb.MultiPolygon
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		boundary = append(boundary, spatial.CollectPolygons(f.Geometry)...)
	}
	return boundary, nil
}

// GenerateGrid lays a lattice of roughly spacingM metres over the boundary's bounding box
// and keeps the points inside the boundary. Steps are derived at the box's mid latitude,
// so they are anisotropic in degrees. grid_id follows enumeration order (latitude rows,
// then longitude).
func GenerateGrid(boundary orb.MultiPolygon, spacingM float64) []models.GridCell {
	if len(boundary) == 0 || spacingM <= 0 {
		return nil
	}

	bound := boundary.Bound()
	minLat, maxLat := bound.Min[1], bound.Max[1]
	minLon, maxLon := bound.Min[0], bound.Max[0]
	refLat := (minLat + maxLat) / 2

	nsMeters := spatial.HaversineDistance(minLat, minLon, maxLat, minLon)
	ewMeters := spatial.HaversineDistance(refLat, minLon, refLat, maxLon)
	if nsMeters == 0 || ewMeters == 0 {
		return nil
	}

	latStep := (maxLat - minLat) / (nsMeters / spacingM)
	lonStep := (maxLon - minLon) / (ewMeters / spacingM)

	nLat := stepCount(minLat, maxLat, latStep)
	nLon := stepCount(minLon, maxLon, lonStep)

	var cells []models.GridCell
	for i := 0; i < nLat; i++ {
		lat := minLat + float64(i)*latStep
		for j := 0; j < nLon; j++ {
			lon := minLon + float64(j)*lonStep
			if planar.MultiPolygonContains(boundary, orb.Point{lon, lat}) {
				cells = append(cells, models.GridCell{GridID: len(cells), Lat: lat, Lon: lon})
			}
		}
	}
	return cells
}

// stepCount returns how many values start+k*step lie in [start, stop)
func stepCount(start, stop, step float64) int {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 0
	}
	return int(math.Ceil((stop - start) / step))
}

// GridSystemStep generates the grid cell lattice for the study boundary
// Skill: 空间网格 (Grid System)
type GridSystemStep struct {
	cfg     *config.Config
	grid    *repository.GridFileRepository
	results *repository.ResultsRepository // nil without a results database
}

// NewGridSystemStep creates a new grid step
func NewGridSystemStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	s := &GridSystemStep{
		cfg:  cfg,
		grid: repository.NewGridFileRepository(cfg.GridPath),
	}
	if db != nil {
		s.results = repository.NewResultsRepository(db)
	}
	return s, nil
}

// GetName returns the step name
func (s *GridSystemStep) GetName() string {
	return "grid"
}

// Run loads the boundary, generates the grid and writes it out
func (s *GridSystemStep) Run(ctx context.Context) (*analysis.Progress, error) {
	boundary, err := LoadBoundary(s.cfg.BoundaryPath)
	if err != nil {
		return nil, err
	}
	log.Printf("[GridSystem] Boundary loaded: %d polygons, bounds %v", len(boundary), boundary.Bound())

	cells := GenerateGrid(boundary, s.cfg.GridSpacingM)
	log.Printf("[GridSystem] Generated %d grid cells at %.1fm spacing", len(cells), s.cfg.GridSpacingM)

	if err := s.grid.Save(cells); err != nil {
		return nil, err
	}

	if s.results != nil {
		if err := s.results.ReplaceCells(ctx, cells); err != nil {
			return nil, err
		}
	}

	return &analysis.Progress{
		Processed: len(cells),
		Total:     len(cells),
		Message:   fmt.Sprintf("grid written to %s", s.grid.Path()),
	}, nil
}

func init() {
	analysis.RegisterStep("grid", NewGridSystemStep)
}
