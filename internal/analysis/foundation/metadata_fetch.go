package foundation

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/provider"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/spatial"
)

// MetadataStore is the append-only output of the fetcher
type MetadataStore interface {
	// LoadCompleted returns the query coordinates already present in the store
	LoadCompleted() (map[models.Coord]struct{}, error)
	// Append persists records after the existing ones
	Append(records []models.PanoRecord) error
}

// FetchStats counts the outcome of one fetch run
type FetchStats struct {
	Total   int // Grid cells considered (after Limit)
	Skipped int // Already completed in a previous run or earlier in this one
	Fetched int // Cells that returned at least one panorama
	Empty   int // Cells that returned none (retried next run)
	Failed  int // Provider errors (retried next run)
	Records int // Panorama records produced
	Flushes int // Batches appended to the store
}

// MetadataFetcher queries the provider once per grid cell and appends the results
// to the store in batches. Runs are resumable: cells whose exact coordinate is
// already in the store are skipped.
type MetadataFetcher struct {
	provider provider.Provider
	store    MetadataStore

	BatchSize   int       // Cells with results per flush
	Limit       int       // Process only the first Limit cells; 0 = all
	ProgressOut io.Writer // Progress bar destination; nil = stderr
}

// NewMetadataFetcher creates a new metadata fetcher
func NewMetadataFetcher(p provider.Provider, store MetadataStore, batchSize int) *MetadataFetcher {
	return &MetadataFetcher{
		provider:  p,
		store:     store,
		BatchSize: batchSize,
	}
}

// Run fetches metadata for every pending cell.
// Provider failures are logged and counted; store failures abort the run.
// On cancellation the buffered records are flushed and ctx.Err() is returned.
func (f *MetadataFetcher) Run(ctx context.Context, cells []models.GridCell) (*FetchStats, error) {
	if f.Limit > 0 && f.Limit < len(cells) {
		log.Printf("[MetadataFetcher] Limit set: processing first %d of %d cells", f.Limit, len(cells))
		cells = cells[:f.Limit]
	}

	stats := &FetchStats{Total: len(cells)}

	completed, err := f.store.LoadCompleted()
	if err != nil {
		return stats, err
	}
	log.Printf("[MetadataFetcher] %d query points already completed", len(completed))

	buf := analysis.NewBatchBuffer(f.BatchSize, func(records []models.PanoRecord) error {
		if err := f.store.Append(records); err != nil {
			return err
		}
		log.Printf("[MetadataFetcher] Flushed %d records", len(records))
		return nil
	})

	finish := func(runErr error) (*FetchStats, error) {
		if err := buf.Flush(); err != nil {
			stats.Flushes = buf.Flushes()
			return stats, err
		}
		stats.Flushes = buf.Flushes()
		return stats, runErr
	}

	out := f.ProgressOut
	if out == nil {
		out = os.Stderr
	}
	bar := progressbar.NewOptions(len(cells),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("[MetadataFetcher]"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
	)
	defer bar.Finish()

	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			log.Printf("[MetadataFetcher] Cancelled, flushing %d buffered records", buf.PendingRecords())
			return finish(err)
		}
		bar.Add(1)

		coord := cell.Coord()
		if _, done := completed[coord]; done {
			stats.Skipped++
			continue
		}

		panos, err := f.provider.Panoramas(ctx, cell.Lat, cell.Lon)
		if err != nil {
			if ctx.Err() != nil {
				return finish(ctx.Err())
			}
			stats.Failed++
			log.Printf("[MetadataFetcher] Failed at (%v, %v) grid %d: %v", cell.Lat, cell.Lon, cell.GridID, err)
			continue
		}

		records := BuildPanoRecords(cell, panos)
		if len(records) == 0 {
			stats.Empty++
			continue
		}

		stats.Fetched++
		stats.Records += len(records)
		if _, err := buf.Add(records); err != nil {
			stats.Flushes = buf.Flushes()
			return stats, err
		}
		completed[coord] = struct{}{}
	}

	return finish(nil)
}

// BuildPanoRecords pairs provider results with the query cell and measures the
// great-circle distance from the query point to each panorama
func BuildPanoRecords(cell models.GridCell, panos []models.RawPanorama) []models.PanoRecord {
	records := make([]models.PanoRecord, 0, len(panos))
	for _, p := range panos {
		records = append(records, models.PanoRecord{
			GridID:    cell.GridID,
			QueryLat:  cell.Lat,
			QueryLon:  cell.Lon,
			PanoID:    p.PanoID,
			Lat:       p.Lat,
			Lon:       p.Lon,
			Year:      p.Year,
			Month:     p.Month,
			DistanceM: spatial.HaversineDistance(cell.Lat, cell.Lon, p.Lat, p.Lon),
		})
	}
	return records
}

// MetadataFetchStep fetches street-view metadata for the grid
// Skill: 街景元数据采集 (Metadata Fetch)
type MetadataFetchStep struct {
	grid    *repository.GridFileRepository
	fetcher *MetadataFetcher
}

// NewMetadataFetchStep creates a new fetch step
func NewMetadataFetchStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	client, err := provider.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	return newMetadataFetchStep(cfg, client), nil
}

func newMetadataFetchStep(cfg *config.Config, p provider.Provider) *MetadataFetchStep {
	fetcher := NewMetadataFetcher(p, repository.NewMetadataFileRepository(cfg.MetadataPath), cfg.BatchSize)
	fetcher.Limit = cfg.FetchLimit
	return &MetadataFetchStep{
		grid:    repository.NewGridFileRepository(cfg.GridPath),
		fetcher: fetcher,
	}
}

// GetName returns the step name
func (s *MetadataFetchStep) GetName() string {
	return "fetch"
}

// Run loads the grid and fetches metadata for it
func (s *MetadataFetchStep) Run(ctx context.Context) (*analysis.Progress, error) {
	cells, err := s.grid.Load()
	if err != nil {
		return nil, err
	}

	stats, err := s.fetcher.Run(ctx, cells)
	progress := &analysis.Progress{
		Processed: stats.Fetched,
		Total:     stats.Total,
		Failed:    stats.Failed,
		Message: fmt.Sprintf("skipped=%d empty=%d records=%d flushes=%d",
			stats.Skipped, stats.Empty, stats.Records, stats.Flushes),
	}
	return progress, err
}

func init() {
	analysis.RegisterStep("fetch", NewMetadataFetchStep)
}
