package service

import (
	"context"
	"fmt"

	"github.com/jengzang/svi-coverage-go/internal/analysis/stats"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/spatial"
)

// CoverageService handles business logic for grid coverage results
type CoverageService struct {
	results *repository.ResultsRepository
	runs    *repository.RunRepository
}

// NewCoverageService creates a new coverage service
func NewCoverageService(results *repository.ResultsRepository, runs *repository.RunRepository) *CoverageService {
	return &CoverageService{results: results, runs: runs}
}

// ListCells retrieves grid cells with filtering
func (s *CoverageService) ListCells(ctx context.Context, filter models.CoverageFilter) ([]models.CellCoverage, error) {
	if filter.MinLat != nil && filter.MaxLat != nil && *filter.MinLat > *filter.MaxLat {
		return nil, fmt.Errorf("%w: min_lat greater than max_lat", ErrInvalidFilter)
	}
	if filter.MinLon != nil && filter.MaxLon != nil && *filter.MinLon > *filter.MaxLon {
		return nil, fmt.Errorf("%w: min_lon greater than max_lon", ErrInvalidFilter)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	if filter.Geohash != "" && !spatial.ValidGeohash(filter.Geohash) {
		return nil, fmt.Errorf("%w: bad geohash %q", ErrInvalidFilter, filter.Geohash)
	}
	switch filter.RoadType {
	case "", models.RoadTypeDrivable, models.RoadTypeNonDrivable, models.RoadTypeNoRoad:
	default:
		return nil, fmt.Errorf("%w: unknown road_type %q", ErrInvalidFilter, filter.RoadType)
	}
	return s.results.ListCells(ctx, filter)
}

// GetCell retrieves a single grid cell by ID
func (s *CoverageService) GetCell(ctx context.Context, gridID int) (*models.CellCoverage, error) {
	return s.results.GetCell(ctx, gridID)
}

// Report builds the coverage report from the stored results.
// The road type breakdown is included only when tags have been stored.
func (s *CoverageService) Report(ctx context.Context) (*stats.CoverageReport, error) {
	total, err := s.results.CountCells(ctx)
	if err != nil {
		return nil, err
	}
	summaries, err := s.results.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.results.Tags(ctx)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		tags = nil
	}
	return stats.BuildCoverageReport(total, summaries, tags), nil
}

// ListRuns retrieves recent pipeline runs, optionally for one step
func (s *CoverageService) ListRuns(ctx context.Context, step string, limit int) ([]models.PipelineRun, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	return s.runs.List(ctx, step, limit)
}

// GetRun retrieves a single pipeline run
func (s *CoverageService) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	return s.runs.GetByID(ctx, id)
}
