package repository

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jengzang/svi-coverage-go/internal/models"
)

var tagsHeader = []string{
	"grid_id", "query_lat", "query_lon", "grid_highway", "road_type",
	"n_tags", "unique_keys", "tag_key_list", "tag_value_list",
}

// TagsFileRepository reads and writes the per-cell OSM annotation CSV
type TagsFileRepository struct {
	path string
}

// NewTagsFileRepository creates a new tags file repository
func NewTagsFileRepository(path string) *TagsFileRepository {
	return &TagsFileRepository{path: path}
}

// Load reads all tag rows in file order
func (r *TagsFileRepository) Load() ([]models.GridTags, error) {
	var out []models.GridTags
	err := readRows(r.path, func(line int, row map[string]string) error {
		var t models.GridTags
		var err error
		if t.GridID, err = parseInt(row, "grid_id"); err != nil {
			return err
		}
		if t.QueryLat, err = parseFloat(row, "query_lat"); err != nil {
			return err
		}
		if t.QueryLon, err = parseFloat(row, "query_lon"); err != nil {
			return err
		}
		if t.NTags, err = parseInt(row, "n_tags"); err != nil {
			return err
		}
		if t.UniqueKeys, err = parseInt(row, "unique_keys"); err != nil {
			return err
		}
		t.GridHighway = row["grid_highway"]
		t.RoadType = row["road_type"]
		if t.TagKeys, err = decodeList(row["tag_key_list"]); err != nil {
			return fmt.Errorf("invalid tag_key_list: %w", err)
		}
		if t.TagValues, err = decodeList(row["tag_value_list"]); err != nil {
			return fmt.Errorf("invalid tag_value_list: %w", err)
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load grid tags: %w", err)
	}
	return out, nil
}

// Save replaces the file with the given tag rows
func (r *TagsFileRepository) Save(tags []models.GridTags) error {
	rows := make([][]string, 0, len(tags))
	for _, t := range tags {
		keys, err := encodeList(t.TagKeys)
		if err != nil {
			return err
		}
		values, err := encodeList(t.TagValues)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			strconv.Itoa(t.GridID),
			formatFloat(t.QueryLat),
			formatFloat(t.QueryLon),
			t.GridHighway,
			t.RoadType,
			strconv.Itoa(t.NTags),
			strconv.Itoa(t.UniqueKeys),
			keys,
			values,
		})
	}
	if err := writeRows(r.path, tagsHeader, rows); err != nil {
		return fmt.Errorf("failed to save grid tags: %w", err)
	}
	return nil
}

func encodeList(items []string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode tag list: %w", err)
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}
