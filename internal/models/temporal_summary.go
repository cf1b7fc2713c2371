package models

// GridTemporalSummary holds the temporal coverage metrics of one grid cell.
// Nil pointers are nulls: a cell without any dated panorama has no dates,
// gap, span or recency.
type GridTemporalSummary struct {
	GridID        int     `json:"grid_id" db:"grid_id"`
	FirstDate     *string `json:"first_date" db:"first_date"`
	LatestDate    *string `json:"latest_date" db:"latest_date"`
	NDates        int     `json:"n_dates" db:"n_dates"` // Distinct capture months
	NPanos        int     `json:"n_panos" db:"n_panos"` // Distinct panoids
	MaxGapMonths  *int    `json:"max_gap_months" db:"max_gap_months"`
	SpanMonths    *int    `json:"span_months" db:"span_months"`
	RecencyMonths *int    `json:"recency_months" db:"recency_months"` // Months behind the freshest capture anywhere
}

// HasDates reports whether the cell has at least one dated capture
func (s GridTemporalSummary) HasDates() bool {
	return s.NDates > 0
}
