package repository

import (
	"fmt"
	"strconv"

	"github.com/jengzang/svi-coverage-go/internal/models"
)

var summaryHeader = []string{
	"grid_id", "first_date", "latest_date", "n_dates", "n_panos",
	"max_gap_months", "span_months", "recency_months",
}

// SummaryFileRepository reads and writes per-cell temporal summaries
type SummaryFileRepository struct {
	path string
}

// NewSummaryFileRepository creates a new summary file repository
func NewSummaryFileRepository(path string) *SummaryFileRepository {
	return &SummaryFileRepository{path: path}
}

// Load reads all summaries in file order
func (r *SummaryFileRepository) Load() ([]models.GridTemporalSummary, error) {
	var out []models.GridTemporalSummary
	err := readRows(r.path, func(line int, row map[string]string) error {
		var s models.GridTemporalSummary
		var err error
		if s.GridID, err = parseInt(row, "grid_id"); err != nil {
			return err
		}
		if s.NDates, err = parseInt(row, "n_dates"); err != nil {
			return err
		}
		if s.NPanos, err = parseInt(row, "n_panos"); err != nil {
			return err
		}
		s.FirstDate = parseOptString(row, "first_date")
		s.LatestDate = parseOptString(row, "latest_date")
		s.MaxGapMonths = parseOptInt(row, "max_gap_months")
		s.SpanMonths = parseOptInt(row, "span_months")
		s.RecencyMonths = parseOptInt(row, "recency_months")
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load temporal summary: %w", err)
	}
	return out, nil
}

// Save replaces the file with the given summaries. Nulls become empty cells.
func (r *SummaryFileRepository) Save(summaries []models.GridTemporalSummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			strconv.Itoa(s.GridID),
			formatOptString(s.FirstDate),
			formatOptString(s.LatestDate),
			strconv.Itoa(s.NDates),
			strconv.Itoa(s.NPanos),
			formatOptInt(s.MaxGapMonths),
			formatOptInt(s.SpanMonths),
			formatOptInt(s.RecencyMonths),
		})
	}
	if err := writeRows(r.path, summaryHeader, rows); err != nil {
		return fmt.Errorf("failed to save temporal summary: %w", err)
	}
	return nil
}
