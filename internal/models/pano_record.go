package models

import "fmt"

// RawPanorama is a single entry returned by a street-view metadata provider
type RawPanorama struct {
	PanoID string
	Lat    float64
	Lon    float64
	Year   *int // nil when the provider has no capture date
	Month  *int
}

// PanoRecord is one panorama returned for one grid query point.
// The same PanoID may appear for several nearby query points in raw data.
type PanoRecord struct {
	GridID    int     `json:"grid_id" db:"grid_id"`
	QueryLat  float64 `json:"query_lat" db:"query_lat"`
	QueryLon  float64 `json:"query_lon" db:"query_lon"`
	PanoID    string  `json:"panoid" db:"panoid"`
	Lat       float64 `json:"lat" db:"lat"`
	Lon       float64 `json:"lon" db:"lon"`
	Year      *int    `json:"year,omitempty" db:"year"`
	Month     *int    `json:"month,omitempty" db:"month"` // 1-12
	DistanceM float64 `json:"distance_m" db:"distance_m"` // Query point to pano location
}

// QueryCoord returns the grid query coordinate the record was fetched for
func (r PanoRecord) QueryCoord() Coord {
	return Coord{Lat: r.QueryLat, Lon: r.QueryLon}
}

// HasDate reports whether the record carries a usable capture year and month
func (r PanoRecord) HasDate() bool {
	return r.Year != nil && r.Month != nil && *r.Month >= 1 && *r.Month <= 12
}

// MonthIndex returns year*12+month for dated records
func (r PanoRecord) MonthIndex() (int, bool) {
	if !r.HasDate() {
		return 0, false
	}
	return MonthIndex(*r.Year, *r.Month), true
}

// DateText renders the record's own capture date as YYYY-MM
func (r PanoRecord) DateText() string {
	if !r.HasDate() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", *r.Year, *r.Month)
}

// MonthIndex maps a (year, month) pair onto a single integer for month arithmetic
func MonthIndex(year, month int) int {
	return year*12 + month
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// FloatPtr returns a pointer to v
func FloatPtr(v float64) *float64 {
	return &v
}
