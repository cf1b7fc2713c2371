package temporal

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

// monthIndexed pairs a record with its month index, computed once
type monthIndexed struct {
	rec   *models.PanoRecord
	index int
	dated bool
}

// AggregateCoverage summarises the capture history of every grid cell present in
// records. Recency is measured against the newest capture in the whole dataset.
// Output is ordered by grid_id. records is not modified.
func AggregateCoverage(records []models.PanoRecord) []models.GridTemporalSummary {
	indexed := make([]monthIndexed, len(records))
	globalMax, anyDated := 0, false

	groups := make(map[int][]int)
	for i := range records {
		idx, ok := records[i].MonthIndex()
		indexed[i] = monthIndexed{rec: &records[i], index: idx, dated: ok}
		if ok && (!anyDated || idx > globalMax) {
			globalMax, anyDated = idx, true
		}
		gid := records[i].GridID
		groups[gid] = append(groups[gid], i)
	}

	gridIDs := make([]int, 0, len(groups))
	for gid := range groups {
		gridIDs = append(gridIDs, gid)
	}
	sort.Ints(gridIDs)

	out := make([]models.GridTemporalSummary, 0, len(gridIDs))
	for _, gid := range gridIDs {
		members := make([]monthIndexed, 0, len(groups[gid]))
		for _, i := range groups[gid] {
			members = append(members, indexed[i])
		}
		out = append(out, summarizeCell(gid, members, globalMax))
	}
	return out
}

// summarizeCell computes one cell's summary from its records in input order
func summarizeCell(gridID int, members []monthIndexed, globalMax int) models.GridTemporalSummary {
	s := models.GridTemporalSummary{GridID: gridID}

	panos := make(map[string]struct{}, len(members))
	months := make(map[int]struct{}, len(members))
	var first, last *monthIndexed

	for i := range members {
		m := &members[i]
		panos[m.rec.PanoID] = struct{}{}
		if !m.dated {
			continue
		}
		months[m.index] = struct{}{}
		if first == nil || m.index < first.index {
			first = m
		}
		if last == nil || m.index > last.index {
			last = m
		}
	}

	s.NPanos = len(panos)
	if first == nil {
		return s
	}

	sorted := make([]int, 0, len(months))
	for idx := range months {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	firstText := first.rec.DateText()
	lastText := last.rec.DateText()
	s.FirstDate = &firstText
	s.LatestDate = &lastText
	s.NDates = len(sorted)
	s.SpanMonths = models.IntPtr(last.index - first.index)
	s.RecencyMonths = models.IntPtr(globalMax - last.index)

	if len(sorted) > 1 {
		maxGap := 0
		for i := 1; i < len(sorted); i++ {
			if gap := sorted[i] - sorted[i-1]; gap > maxGap {
				maxGap = gap
			}
		}
		s.MaxGapMonths = &maxGap
	}
	return s
}

// TemporalCoverageStep aggregates cleaned metadata into per-cell summaries
// Skill: 时间覆盖 (Temporal Coverage)
type TemporalCoverageStep struct {
	cleaned *repository.MetadataFileRepository
	summary *repository.SummaryFileRepository
	results *repository.ResultsRepository
}

// NewTemporalCoverageStep creates a new aggregate step
func NewTemporalCoverageStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	s := &TemporalCoverageStep{
		cleaned: repository.NewMetadataFileRepository(cfg.CleanedPath),
		summary: repository.NewSummaryFileRepository(cfg.SummaryPath),
	}
	if db != nil {
		s.results = repository.NewResultsRepository(db)
	}
	return s, nil
}

// GetName returns the step name
func (s *TemporalCoverageStep) GetName() string {
	return "aggregate"
}

// Run aggregates the cleaned metadata
func (s *TemporalCoverageStep) Run(ctx context.Context) (*analysis.Progress, error) {
	records, err := s.cleaned.Load()
	if err != nil {
		return nil, err
	}

	summaries := AggregateCoverage(records)

	covered := 0
	for _, sum := range summaries {
		if sum.HasDates() {
			covered++
		}
	}
	log.Printf("[TemporalCoverage] %d records -> %d cells (%d with dates)", len(records), len(summaries), covered)

	if err := s.summary.Save(summaries); err != nil {
		return nil, err
	}
	if s.results != nil {
		if err := s.results.ReplaceSummaries(ctx, summaries); err != nil {
			return nil, err
		}
	}

	return &analysis.Progress{
		Processed: len(summaries),
		Total:     len(records),
		Message:   fmt.Sprintf("%d cells with dates", covered),
	}, nil
}

func init() {
	analysis.RegisterStep("aggregate", NewTemporalCoverageStep)
}
