package foundation

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
)

// CleanStats counts what the cleaner dropped
type CleanStats struct {
	Input      int
	Undated    int // Missing year or month
	Duplicates int // Same panorama returned for another query point
	Output     int
}

// CleanMetadata drops undated records and keeps one record per panorama: the one
// nearest to its query point. Ties go to the lowest grid_id, then input order.
// The result is ordered by panoid; the input slice is not modified.
func CleanMetadata(records []models.PanoRecord) ([]models.PanoRecord, CleanStats) {
	stats := CleanStats{Input: len(records)}

	dated := make([]models.PanoRecord, 0, len(records))
	for _, r := range records {
		if !r.HasDate() {
			stats.Undated++
			continue
		}
		dated = append(dated, r)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].GridID < dated[j].GridID
	})

	nearest := make(map[string]int, len(dated))
	for i, r := range dated {
		j, seen := nearest[r.PanoID]
		if !seen || r.DistanceM < dated[j].DistanceM {
			nearest[r.PanoID] = i
		}
	}

	out := make([]models.PanoRecord, 0, len(nearest))
	for _, i := range nearest {
		out = append(out, dated[i])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PanoID < out[j].PanoID
	})

	stats.Duplicates = len(dated) - len(out)
	stats.Output = len(out)
	return out, stats
}

// MetadataCleanStep writes the deduplicated, dated metadata
type MetadataCleanStep struct {
	raw     *repository.MetadataFileRepository
	cleaned *repository.MetadataFileRepository
}

// NewMetadataCleanStep creates a new clean step
func NewMetadataCleanStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	return &MetadataCleanStep{
		raw:     repository.NewMetadataFileRepository(cfg.MetadataPath),
		cleaned: repository.NewMetadataFileRepository(cfg.CleanedPath),
	}, nil
}

// GetName returns the step name
func (s *MetadataCleanStep) GetName() string {
	return "clean"
}

// Run cleans the raw metadata file
func (s *MetadataCleanStep) Run(ctx context.Context) (*analysis.Progress, error) {
	records, err := s.raw.Load()
	if err != nil {
		return nil, err
	}

	cleaned, stats := CleanMetadata(records)
	log.Printf("[MetadataCleaner] input=%d undated=%d duplicates=%d output=%d",
		stats.Input, stats.Undated, stats.Duplicates, stats.Output)

	if err := s.cleaned.Save(cleaned); err != nil {
		return nil, err
	}

	return &analysis.Progress{
		Processed: stats.Output,
		Total:     stats.Input,
		Message:   fmt.Sprintf("undated=%d duplicates=%d", stats.Undated, stats.Duplicates),
	}, nil
}

func init() {
	analysis.RegisterStep("clean", NewMetadataCleanStep)
}
