package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/stats"
)

// HistogramBin counts cells with a given number of distinct capture months
type HistogramBin struct {
	NDates int `json:"n_dates"`
	Cells  int `json:"cells"`
}

// RoadTypeBreakdown is the coverage of one road tier
type RoadTypeBreakdown struct {
	RoadType      string   `json:"road_type"`
	Cells         int      `json:"cells"`
	CoveredCells  int      `json:"covered_cells"`
	CoverageRatio float64  `json:"coverage_ratio"`
	MeanNDates    *float64 `json:"mean_n_dates"` // Covered cells only
	MeanRecency   *float64 `json:"mean_recency"` // Covered cells only
}

// Correlation relates capture frequency to staleness over covered cells
type Correlation struct {
	Pairs    int     `json:"pairs"`
	Pearson  float64 `json:"pearson"`
	Spearman float64 `json:"spearman"`
}

// CoverageReport summarises temporal coverage bias across the grid
type CoverageReport struct {
	GridCells     int     `json:"grid_cells"`
	CoveredCells  int     `json:"covered_cells"` // At least one dated panorama
	CoverageRatio float64 `json:"coverage_ratio"`

	Metrics         map[string]stats.Summary `json:"metrics"`
	NDatesHistogram []HistogramBin           `json:"n_dates_histogram"`

	NDatesVsRecency Correlation `json:"n_dates_vs_recency"`

	// Quadrant outliers among covered cells
	HighFrequencyOld []int `json:"high_frequency_old"` // n_dates > Q3 and recency > Q3
	LowFrequencyNew  []int `json:"low_frequency_new"`  // n_dates < Q1 and recency < Q1

	RoadTypes []RoadTypeBreakdown `json:"road_types,omitempty"`
}

// BuildCoverageReport computes the report. gridCells is the size of the grid,
// cells without a summary count as uncovered. tags may be nil.
func BuildCoverageReport(gridCells int, summaries []models.GridTemporalSummary, tags []models.GridTags) *CoverageReport {
	var covered []models.GridTemporalSummary
	for _, s := range summaries {
		if s.HasDates() {
			covered = append(covered, s)
		}
	}

	r := &CoverageReport{
		GridCells:    gridCells,
		CoveredCells: len(covered),
		Metrics:      make(map[string]stats.Summary),
	}
	if gridCells > 0 {
		r.CoverageRatio = float64(len(covered)) / float64(gridCells)
	}

	r.Metrics["n_dates"] = stats.Describe(intValues(covered, func(s models.GridTemporalSummary) *int { return &s.NDates }))
	r.Metrics["n_panos"] = stats.Describe(intValues(summaries, func(s models.GridTemporalSummary) *int { return &s.NPanos }))
	r.Metrics["span_months"] = stats.Describe(intValues(covered, func(s models.GridTemporalSummary) *int { return s.SpanMonths }))
	r.Metrics["recency_months"] = stats.Describe(intValues(covered, func(s models.GridTemporalSummary) *int { return s.RecencyMonths }))
	r.Metrics["max_gap_months"] = stats.Describe(intValues(covered, func(s models.GridTemporalSummary) *int { return s.MaxGapMonths }))

	r.NDatesHistogram = histogram(gridCells, covered)

	// Pairs need both values
	var ids []int
	var nDates, recency []float64
	for _, s := range covered {
		if s.RecencyMonths == nil {
			continue
		}
		ids = append(ids, s.GridID)
		nDates = append(nDates, float64(s.NDates))
		recency = append(recency, float64(*s.RecencyMonths))
	}
	r.NDatesVsRecency = Correlation{
		Pairs:    len(ids),
		Pearson:  stats.PearsonCorrelation(nDates, recency),
		Spearman: stats.SpearmanCorrelation(nDates, recency),
	}

	r.HighFrequencyOld, r.LowFrequencyNew = quadrantOutliers(ids, nDates, recency)

	if tags != nil {
		r.RoadTypes = roadTypeBreakdown(summaries, tags)
	}
	return r
}

// intValues collects the non-null values of one metric
func intValues(summaries []models.GridTemporalSummary, field func(models.GridTemporalSummary) *int) []float64 {
	out := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		if v := field(s); v != nil {
			out = append(out, float64(*v))
		}
	}
	return out
}

func histogram(gridCells int, covered []models.GridTemporalSummary) []HistogramBin {
	counts := make(map[int]int)
	for _, s := range covered {
		counts[s.NDates]++
	}
	if uncovered := gridCells - len(covered); uncovered > 0 {
		counts[0] = uncovered
	}

	bins := make([]HistogramBin, 0, len(counts))
	for n, c := range counts {
		bins = append(bins, HistogramBin{NDates: n, Cells: c})
	}
	sort.Slice(bins, func(i, j int) bool {
		return bins[i].NDates < bins[j].NDates
	})
	return bins
}

func quadrantOutliers(ids []int, nDates, recency []float64) (highOld, lowNew []int) {
	highOld, lowNew = []int{}, []int{}
	if len(ids) == 0 {
		return
	}

	dQ1, _, dQ3 := stats.Quartiles(nDates)
	rQ1, _, rQ3 := stats.Quartiles(recency)

	for i, id := range ids {
		if nDates[i] > dQ3 && recency[i] > rQ3 {
			highOld = append(highOld, id)
		}
		if nDates[i] < dQ1 && recency[i] < rQ1 {
			lowNew = append(lowNew, id)
		}
	}
	return
}

var roadTypeOrder = []string{models.RoadTypeDrivable, models.RoadTypeNonDrivable, models.RoadTypeNoRoad}

func roadTypeBreakdown(summaries []models.GridTemporalSummary, tags []models.GridTags) []RoadTypeBreakdown {
	byGrid := make(map[int]models.GridTemporalSummary, len(summaries))
	for _, s := range summaries {
		byGrid[s.GridID] = s
	}

	type acc struct {
		cells, covered  int
		nDates, recency []float64
	}
	groups := make(map[string]*acc)
	for _, t := range tags {
		a, ok := groups[t.RoadType]
		if !ok {
			a = &acc{}
			groups[t.RoadType] = a
		}
		a.cells++
		if s, ok := byGrid[t.GridID]; ok && s.HasDates() {
			a.covered++
			a.nDates = append(a.nDates, float64(s.NDates))
			if s.RecencyMonths != nil {
				a.recency = append(a.recency, float64(*s.RecencyMonths))
			}
		}
	}

	order := append([]string(nil), roadTypeOrder...)
	var extra []string
	for rt := range groups {
		known := false
		for _, k := range roadTypeOrder {
			if rt == k {
				known = true
			}
		}
		if !known {
			extra = append(extra, rt)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var out []RoadTypeBreakdown
	for _, rt := range order {
		a, ok := groups[rt]
		if !ok {
			continue
		}
		b := RoadTypeBreakdown{RoadType: rt, Cells: a.cells, CoveredCells: a.covered}
		if a.cells > 0 {
			b.CoverageRatio = float64(a.covered) / float64(a.cells)
		}
		if len(a.nDates) > 0 {
			m := stats.Mean(a.nDates)
			b.MeanNDates = &m
		}
		if len(a.recency) > 0 {
			m := stats.Mean(a.recency)
			b.MeanRecency = &m
		}
		out = append(out, b)
	}
	return out
}

// WriteReport writes the report as indented JSON
func WriteReport(path string, r *CoverageReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// CoverageReportStep writes the coverage bias report
// Skill: 覆盖偏差报告 (Coverage Report)
type CoverageReportStep struct {
	path    string
	grid    *repository.GridFileRepository
	summary *repository.SummaryFileRepository
	tags    *repository.TagsFileRepository
}

// NewCoverageReportStep creates a new report step
func NewCoverageReportStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	return &CoverageReportStep{
		path:    cfg.ReportPath,
		grid:    repository.NewGridFileRepository(cfg.GridPath),
		summary: repository.NewSummaryFileRepository(cfg.SummaryPath),
		tags:    repository.NewTagsFileRepository(cfg.TagsPath),
	}, nil
}

// GetName returns the step name
func (s *CoverageReportStep) GetName() string {
	return "report"
}

// Run builds the report from the grid, summary and (optional) tag files
func (s *CoverageReportStep) Run(ctx context.Context) (*analysis.Progress, error) {
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
		log.Printf("[CoverageReport] No tag file, skipping road type breakdown")
		tags = nil
	} else if err != nil {
		return nil, err
	}

	report := BuildCoverageReport(len(cells), summaries, tags)
	if err := WriteReport(s.path, report); err != nil {
		return nil, err
	}

	log.Printf("[CoverageReport] coverage=%.3f high_frequency_old=%d low_frequency_new=%d pearson=%.3f",
		report.CoverageRatio, len(report.HighFrequencyOld), len(report.LowFrequencyNew), report.NDatesVsRecency.Pearson)

	return &analysis.Progress{
		Processed: report.CoveredCells,
		Total:     report.GridCells,
		Message:   fmt.Sprintf("report written to %s", s.path),
	}, nil
}

func init() {
	analysis.RegisterStep("report", NewCoverageReportStep)
}
