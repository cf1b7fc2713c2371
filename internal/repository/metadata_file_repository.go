package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"

	"github.com/jengzang/svi-coverage-go/internal/models"
)

var metadataHeader = []string{
	"query_lat", "query_lon", "panoid", "lat", "lon", "year", "month", "distance_m", "grid_id",
}

// MetadataFileRepository stores panorama records as CSV.
// The raw fetch output is append-only; the cleaned output is written whole.
type MetadataFileRepository struct {
	path string
}

// NewMetadataFileRepository creates a new metadata file repository
func NewMetadataFileRepository(path string) *MetadataFileRepository {
	return &MetadataFileRepository{path: path}
}

// Path returns the backing file path
func (r *MetadataFileRepository) Path() string {
	return r.path
}

// LoadCompleted returns the set of query coordinates already present in the file.
// A missing file is an empty set.
func (r *MetadataFileRepository) LoadCompleted() (map[models.Coord]struct{}, error) {
	done := make(map[models.Coord]struct{})
	err := readRows(r.path, func(line int, row map[string]string) error {
		lat, err := parseFloat(row, "query_lat")
		if err != nil {
			return err
		}
		lon, err := parseFloat(row, "query_lon")
		if err != nil {
			return err
		}
		done[models.Coord{Lat: lat, Lon: lon}] = struct{}{}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load completed queries: %w", err)
	}

	// 被截断的最后一行所属坐标需要重新查询
	torn, err := readTornRow(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed queries: %w", err)
	}
	if c, ok := tornQuery(torn); ok {
		log.Printf("[MetadataStore] Query (%v, %v) was cut short, it will be fetched again", c.Lat, c.Lon)
		delete(done, c)
	}
	return done, nil
}

// tornQuery extracts the query coordinate of a partially written row
func tornQuery(row map[string]string) (models.Coord, bool) {
	lat, err := parseFloat(row, "query_lat")
	if err != nil {
		return models.Coord{}, false
	}
	lon, err := parseFloat(row, "query_lon")
	if err != nil {
		return models.Coord{}, false
	}
	return models.Coord{Lat: lat, Lon: lon}, true
}

// Append adds records to the end of the file, creating it with a header if needed
func (r *MetadataFileRepository) Append(records []models.PanoRecord) error {
	if err := appendRows(r.path, metadataHeader, metadataRows(records)); err != nil {
		return fmt.Errorf("failed to append metadata: %w", err)
	}
	return nil
}

// Save replaces the file with the given records
func (r *MetadataFileRepository) Save(records []models.PanoRecord) error {
	if err := writeRows(r.path, metadataHeader, metadataRows(records)); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// Load reads all records in file order
func (r *MetadataFileRepository) Load() ([]models.PanoRecord, error) {
	var records []models.PanoRecord
	err := readRows(r.path, func(line int, row map[string]string) error {
		rec, err := parseMetadataRow(row)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return records, nil
}

func parseMetadataRow(row map[string]string) (models.PanoRecord, error) {
	var rec models.PanoRecord
	var err error

	if rec.QueryLat, err = parseFloat(row, "query_lat"); err != nil {
		return rec, err
	}
	if rec.QueryLon, err = parseFloat(row, "query_lon"); err != nil {
		return rec, err
	}
	rec.PanoID = row["panoid"]
	if rec.PanoID == "" {
		return rec, errors.New("missing panoid")
	}
	if rec.Lat, err = parseFloat(row, "lat"); err != nil {
		return rec, err
	}
	if rec.Lon, err = parseFloat(row, "lon"); err != nil {
		return rec, err
	}
	if rec.DistanceM, err = parseFloat(row, "distance_m"); err != nil {
		return rec, err
	}
	if rec.GridID, err = parseInt(row, "grid_id"); err != nil {
		return rec, err
	}
	rec.Year = parseOptInt(row, "year")
	rec.Month = parseOptInt(row, "month")
	return rec, nil
}

func metadataRows(records []models.PanoRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			formatFloat(rec.QueryLat),
			formatFloat(rec.QueryLon),
			rec.PanoID,
			formatFloat(rec.Lat),
			formatFloat(rec.Lon),
			formatOptInt(rec.Year),
			formatOptInt(rec.Month),
			formatFloat(rec.DistanceM),
			strconv.Itoa(rec.GridID),
		})
	}
	return rows
}
