package models

// Road accessibility tiers, in precedence order
const (
	RoadTypeDrivable    = "drivable"
	RoadTypeNonDrivable = "non-drivable"
	RoadTypeNoRoad      = "no-road"
)

// GridTags is the OSM annotation of one grid cell
type GridTags struct {
	GridID      int      `json:"grid_id" db:"grid_id"`
	QueryLat    float64  `json:"query_lat" db:"query_lat"`
	QueryLon    float64  `json:"query_lon" db:"query_lon"`
	GridHighway string   `json:"grid_highway,omitempty" db:"grid_highway"` // Representative highway value
	RoadType    string   `json:"road_type" db:"road_type"`
	NTags       int      `json:"n_tags" db:"n_tags"`
	UniqueKeys  int      `json:"unique_keys" db:"unique_keys"`
	TagKeys     []string `json:"tag_key_list,omitempty" db:"tag_key_list"`
	TagValues   []string `json:"tag_value_list,omitempty" db:"tag_value_list"`
}

// CellCoverage is the API view of a grid cell joined with its summary and tags
type CellCoverage struct {
	GridCell
	Geohash string               `json:"geohash"`
	Summary *GridTemporalSummary `json:"summary,omitempty"`
	Tags    *GridTags            `json:"tags,omitempty"`
}
