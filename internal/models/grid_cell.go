package models

// GridCell is one sample point of the spatial lattice laid over the study boundary.
// Cells are created once by the grid step and only referenced afterwards via GridID.
type GridCell struct {
	GridID int     `json:"grid_id" db:"grid_id"`     // Zero-based, enumeration order
	Lat    float64 `json:"query_lat" db:"query_lat"` // Cell centre latitude
	Lon    float64 `json:"query_lon" db:"query_lon"` // Cell centre longitude
}

// Coord returns the centre coordinate of the cell
func (c GridCell) Coord() Coord {
	return Coord{Lat: c.Lat, Lon: c.Lon}
}

// Coord is an exact (lat, lon) pair used as the key of the completed-query set.
// Two coordinates are equal only when both floats are bit-identical.
type Coord struct {
	Lat float64
	Lon float64
}
