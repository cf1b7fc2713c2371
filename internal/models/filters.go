package models

// CoverageFilter represents filter parameters for querying grid cells
type CoverageFilter struct {
	MinLat      *float64 `form:"min_lat"`
	MaxLat      *float64 `form:"max_lat"`
	MinLon      *float64 `form:"min_lon"`
	MaxLon      *float64 `form:"max_lon"`
	RoadType    string   `form:"road_type"`   // drivable, non-drivable, no-road
	MinRecency  *int     `form:"min_recency"` // Months
	Geohash     string   `form:"geohash"`     // Prefix match
	CoveredOnly bool     `form:"covered"`     // Only cells with at least one dated pano
	Limit       int      `form:"limit"`
}
