package repository

import (
	"fmt"
	"strconv"

	"github.com/jengzang/svi-coverage-go/internal/models"
)

var gridHeader = []string{"grid_id", "query_lat", "query_lon"}

// GridFileRepository reads and writes the grid cell CSV
type GridFileRepository struct {
	path string
}

// NewGridFileRepository creates a new grid file repository
func NewGridFileRepository(path string) *GridFileRepository {
	return &GridFileRepository{path: path}
}

// Path returns the backing file path
func (r *GridFileRepository) Path() string {
	return r.path
}

// Load reads all grid cells in file order. Extra columns are ignored.
func (r *GridFileRepository) Load() ([]models.GridCell, error) {
	var cells []models.GridCell
	err := readRows(r.path, func(line int, row map[string]string) error {
		id, err := parseInt(row, "grid_id")
		if err != nil {
			return err
		}
		lat, err := parseFloat(row, "query_lat")
		if err != nil {
			return err
		}
		lon, err := parseFloat(row, "query_lon")
		if err != nil {
			return err
		}
		cells = append(cells, models.GridCell{GridID: id, Lat: lat, Lon: lon})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load grid: %w", err)
	}
	return cells, nil
}

// Save replaces the file with the given cells
func (r *GridFileRepository) Save(cells []models.GridCell) error {
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{strconv.Itoa(c.GridID), formatFloat(c.Lat), formatFloat(c.Lon)})
	}
	if err := writeRows(r.path, gridHeader, rows); err != nil {
		return fmt.Errorf("failed to save grid: %w", err)
	}
	return nil
}
