package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jengzang/svi-coverage-go/internal/database"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/spatial"
)

const (
	defaultCellLimit = 1000
	maxCellLimit     = 10000
)

// ResultsRepository handles database operations for grid cells, summaries and tags
type ResultsRepository struct {
	db *sql.DB
}

// NewResultsRepository creates a new results repository
func NewResultsRepository(db *sql.DB) *ResultsRepository {
	return &ResultsRepository{db: db}
}

// ReplaceCells replaces every stored grid cell
func (r *ResultsRepository) ReplaceCells(ctx context.Context, cells []models.GridCell) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM grid_cells"); err != nil {
			return fmt.Errorf("failed to clear grid cells: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO grid_cells (grid_id, query_lat, query_lon, geohash) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range cells {
			if _, err := stmt.ExecContext(ctx, c.GridID, c.Lat, c.Lon, spatial.CellGeohash(c.Lat, c.Lon)); err != nil {
				return fmt.Errorf("failed to insert grid cell %d: %w", c.GridID, err)
			}
		}
		return nil
	})
}

// ReplaceSummaries replaces every stored temporal summary
func (r *ResultsRepository) ReplaceSummaries(ctx context.Context, summaries []models.GridTemporalSummary) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM grid_temporal_summary"); err != nil {
			return fmt.Errorf("failed to clear temporal summaries: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO grid_temporal_summary (
				grid_id, first_date, latest_date, n_dates, n_panos,
				max_gap_months, span_months, recency_months
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, s := range summaries {
			_, err := stmt.ExecContext(ctx,
				s.GridID,
				s.FirstDate,
				s.LatestDate,
				s.NDates,
				s.NPanos,
				s.MaxGapMonths,
				s.SpanMonths,
				s.RecencyMonths,
			)
			if err != nil {
				return fmt.Errorf("failed to insert temporal summary %d: %w", s.GridID, err)
			}
		}
		return nil
	})
}

// ReplaceTags replaces every stored tag row
func (r *ResultsRepository) ReplaceTags(ctx context.Context, tags []models.GridTags) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM grid_tags"); err != nil {
			return fmt.Errorf("failed to clear grid tags: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO grid_tags (
				grid_id, grid_highway, road_type, n_tags, unique_keys, tag_key_list, tag_value_list
			) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, t := range tags {
			keys, err := jsonList(t.TagKeys)
			if err != nil {
				return err
			}
			values, err := jsonList(t.TagValues)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx, t.GridID, t.GridHighway, t.RoadType, t.NTags, t.UniqueKeys, keys, values)
			if err != nil {
				return fmt.Errorf("failed to insert grid tags %d: %w", t.GridID, err)
			}
		}
		return nil
	})
}

const coverageSelect = `
	SELECT g.grid_id, g.query_lat, g.query_lon, g.geohash,
		s.grid_id, s.first_date, s.latest_date, s.n_dates, s.n_panos,
		s.max_gap_months, s.span_months, s.recency_months,
		t.grid_id, t.grid_highway, t.road_type, t.n_tags, t.unique_keys,
		t.tag_key_list, t.tag_value_list
	FROM grid_cells g
	LEFT JOIN grid_temporal_summary s ON s.grid_id = g.grid_id
	LEFT JOIN grid_tags t ON t.grid_id = g.grid_id`

// ListCells retrieves grid cells with their summaries and tags, filtered
func (r *ResultsRepository) ListCells(ctx context.Context, filter models.CoverageFilter) ([]models.CellCoverage, error) {
	query := coverageSelect

	var conditions []string
	var args []interface{}

	if filter.MinLat != nil {
		conditions = append(conditions, "g.query_lat >= ?")
		args = append(args, *filter.MinLat)
	}
	if filter.MaxLat != nil {
		conditions = append(conditions, "g.query_lat <= ?")
		args = append(args, *filter.MaxLat)
	}
	if filter.MinLon != nil {
		conditions = append(conditions, "g.query_lon >= ?")
		args = append(args, *filter.MinLon)
	}
	if filter.MaxLon != nil {
		conditions = append(conditions, "g.query_lon <= ?")
		args = append(args, *filter.MaxLon)
	}
	if filter.RoadType != "" {
		conditions = append(conditions, "t.road_type = ?")
		args = append(args, filter.RoadType)
	}
	if filter.MinRecency != nil {
		conditions = append(conditions, "s.recency_months >= ?")
		args = append(args, *filter.MinRecency)
	}
	if filter.Geohash != "" {
		conditions = append(conditions, "g.geohash LIKE ?")
		args = append(args, filter.Geohash+"%")
	}
	if filter.CoveredOnly {
		conditions = append(conditions, "s.n_dates > 0")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultCellLimit
	}
	if limit > maxCellLimit {
		limit = maxCellLimit
	}
	query += " ORDER BY g.grid_id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid cells: %w", err)
	}
	defer rows.Close()

	cells := []models.CellCoverage{}
	for rows.Next() {
		cell, err := scanCoverage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grid cell: %w", err)
		}
		cells = append(cells, *cell)
	}
	return cells, rows.Err()
}

// GetCell retrieves one grid cell with its summary and tags
func (r *ResultsRepository) GetCell(ctx context.Context, gridID int) (*models.CellCoverage, error) {
	row := r.db.QueryRowContext(ctx, coverageSelect+" WHERE g.grid_id = ?", gridID)
	cell, err := scanCoverage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("grid cell %d: %w", gridID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grid cell: %w", err)
	}
	return cell, nil
}

// CountCells returns the number of stored grid cells
func (r *ResultsRepository) CountCells(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM grid_cells").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count grid cells: %w", err)
	}
	return n, nil
}

// Summaries returns every stored temporal summary ordered by grid id
func (r *ResultsRepository) Summaries(ctx context.Context) ([]models.GridTemporalSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT grid_id, first_date, latest_date, n_dates, n_panos,
			max_gap_months, span_months, recency_months
		FROM grid_temporal_summary ORDER BY grid_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query temporal summaries: %w", err)
	}
	defer rows.Close()

	var out []models.GridTemporalSummary
	for rows.Next() {
		var s models.GridTemporalSummary
		var first, latest sql.NullString
		var gap, span, recency sql.NullInt64
		if err := rows.Scan(&s.GridID, &first, &latest, &s.NDates, &s.NPanos, &gap, &span, &recency); err != nil {
			return nil, fmt.Errorf("failed to scan temporal summary: %w", err)
		}
		s.FirstDate = nullString(first)
		s.LatestDate = nullString(latest)
		s.MaxGapMonths = nullInt(gap)
		s.SpanMonths = nullInt(span)
		s.RecencyMonths = nullInt(recency)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Tags returns every stored tag row ordered by grid id, with cell coordinates
func (r *ResultsRepository) Tags(ctx context.Context) ([]models.GridTags, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.grid_id, COALESCE(g.query_lat, 0), COALESCE(g.query_lon, 0), t.grid_highway, t.road_type,
			t.n_tags, t.unique_keys, t.tag_key_list, t.tag_value_list
		FROM grid_tags t
		LEFT JOIN grid_cells g ON g.grid_id = t.grid_id
		ORDER BY t.grid_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid tags: %w", err)
	}
	defer rows.Close()

	var out []models.GridTags
	for rows.Next() {
		var t models.GridTags
		var keys, values string
		err := rows.Scan(&t.GridID, &t.QueryLat, &t.QueryLon, &t.GridHighway, &t.RoadType,
			&t.NTags, &t.UniqueKeys, &keys, &values)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grid tags: %w", err)
		}
		if t.TagKeys, err = decodeList(keys); err != nil {
			return nil, fmt.Errorf("failed to decode tag keys of %d: %w", t.GridID, err)
		}
		if t.TagValues, err = decodeList(values); err != nil {
			return nil, fmt.Errorf("failed to decode tag values of %d: %w", t.GridID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanCoverage(s rowScanner) (*models.CellCoverage, error) {
	var c models.CellCoverage

	var sID, nDates, nPanos, gap, span, recency sql.NullInt64
	var first, latest sql.NullString
	var tID, nTags, uniqueKeys sql.NullInt64
	var highway, roadType, keys, values sql.NullString

	err := s.Scan(
		&c.GridID, &c.Lat, &c.Lon, &c.Geohash,
		&sID, &first, &latest, &nDates, &nPanos, &gap, &span, &recency,
		&tID, &highway, &roadType, &nTags, &uniqueKeys, &keys, &values,
	)
	if err != nil {
		return nil, err
	}

	if sID.Valid {
		c.Summary = &models.GridTemporalSummary{
			GridID:        c.GridID,
			FirstDate:     nullString(first),
			LatestDate:    nullString(latest),
			NDates:        int(nDates.Int64),
			NPanos:        int(nPanos.Int64),
			MaxGapMonths:  nullInt(gap),
			SpanMonths:    nullInt(span),
			RecencyMonths: nullInt(recency),
		}
	}

	if tID.Valid {
		t := &models.GridTags{
			GridID:      c.GridID,
			QueryLat:    c.Lat,
			QueryLon:    c.Lon,
			GridHighway: highway.String,
			RoadType:    roadType.String,
			NTags:       int(nTags.Int64),
			UniqueKeys:  int(uniqueKeys.Int64),
		}
		if t.TagKeys, err = decodeList(keys.String); err != nil {
			return nil, err
		}
		if t.TagValues, err = decodeList(values.String); err != nil {
			return nil, err
		}
		c.Tags = t
	}

	return &c, nil
}

func jsonList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode tag list: %w", err)
	}
	return string(b), nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
