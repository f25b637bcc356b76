package domain

// Coordinate is a planar grid position in metres.
type Coordinate struct {
	Easting  float64 `json:"easting"`
	Northing float64 `json:"northing"`
}

// Bounds is the grid-aligned extent of a set of coordinates.
type Bounds struct {
	MinEasting  float64 `json:"min_easting"`
	MinNorthing float64 `json:"min_northing"`
	MaxEasting  float64 `json:"max_easting"`
	MaxNorthing float64 `json:"max_northing"`
}

// Pad grows the bounds by margin on every side.
func (b Bounds) Pad(margin float64) Bounds {
	return Bounds{
		MinEasting:  b.MinEasting - margin,
		MinNorthing: b.MinNorthing - margin,
		MaxEasting:  b.MaxEasting + margin,
		MaxNorthing: b.MaxNorthing + margin,
	}
}
