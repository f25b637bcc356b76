package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/samirrijal/cadastre/internal/pkg/geospatial"
)

// Layer classifies a survey point on the plan.
type Layer string

const (
	LayerReferenceMark Layer = "REFERENCE_MARK"
	LayerBoundary      Layer = "BOUNDARY"
	LayerEasement      Layer = "EASEMENT"
)

// ParseLayer accepts the canonical names plus the "REFERENCE MARKS" label used on plan sheets.
// An empty string defaults to BOUNDARY.
func ParseLayer(s string) (Layer, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	switch norm {
	case "":
		return LayerBoundary, nil
	case "REFERENCE_MARK", "REFERENCE_MARKS", "RM":
		return LayerReferenceMark, nil
	case "BOUNDARY":
		return LayerBoundary, nil
	case "EASEMENT":
		return LayerEasement, nil
	}
	return "", fmt.Errorf("unknown layer %q", s)
}

// Point is a survey mark on the plan. Screen-space northing is a presentation concern, see ScreenNorthing.
type Point struct {
	Number    int     `json:"number"`
	Easting   float64 `json:"easting"`
	Northing  float64 `json:"northing"`
	Elevation float64 `json:"elevation"`
	Code      string  `json:"code,omitempty"`
	Layer     Layer   `json:"layer"`
}

// Coordinate returns the point's grid position.
func (p Point) Coordinate() Coordinate {
	return Coordinate{Easting: p.Easting, Northing: p.Northing}
}

// ScreenNorthing mirrors northing for y-down screen coordinates.
func (p Point) ScreenNorthing() float64 {
	return -p.Northing
}

// Arc describes a curved leg. Rotation is the turning direction seen from the source point.
type Arc struct {
	Radius   float64             `json:"radius"`
	Rotation geospatial.Rotation `json:"rotation"`
	Length   float64             `json:"length"`
	Major    bool                `json:"major,omitempty"`
}

// Leg is a directed traverse edge. It is the source of truth for its destination point:
// applying it to the source coordinates reproduces the destination.
// For arcs, Bearing is the tangent bearing at the source and Distance is the chord length.
type Leg struct {
	From     int              `json:"from"`
	To       int              `json:"to"`
	Bearing  geospatial.Angle `json:"bearing"`
	Distance float64          `json:"distance"`
	Arc      *Arc             `json:"arc,omitempty"`
	Adjusted bool             `json:"adjusted,omitempty"`
}

// BearingDMS is the leg bearing in packed D.MMSS form, as written on the plan.
func (l Leg) BearingDMS() string {
	return l.Bearing.DMS()
}

// Chord returns the straight-line bearing and length between the leg's endpoints.
func (l Leg) Chord() (geospatial.Angle, float64, error) {
	if l.Arc == nil {
		return l.Bearing, l.Distance, nil
	}
	c, err := geospatial.Chord(l.Bearing, l.Arc.Radius, l.Arc.Rotation, l.Arc.Length)
	if err != nil {
		return 0, 0, err
	}
	return c.Bearing, c.Length, nil
}

// PathLength is the distance travelled along the leg: the arc length for a curve.
func (l Leg) PathLength() float64 {
	if l.Arc != nil {
		return l.Arc.Length
	}
	return l.Distance
}

// Apply computes the destination coordinates of the leg from its source.
func (l Leg) Apply(from Coordinate) (Coordinate, error) {
	var e, n float64
	var err error
	if l.Arc == nil {
		e, n, err = geospatial.PointFromBearingDistance(from.Easting, from.Northing, l.Bearing, l.Distance)
	} else {
		e, n, _, err = geospatial.PointFromArc(from.Easting, from.Northing, l.Bearing, l.Arc.Radius, l.Arc.Rotation, l.Arc.Length)
	}
	if err != nil {
		return Coordinate{}, err
	}
	return Coordinate{Easting: e, Northing: n}, nil
}

// TraverseState is the lifecycle stage of a traverse.
type TraverseState string

const (
	TraverseEmpty     TraverseState = "EMPTY"
	TraverseOpen      TraverseState = "OPEN"
	TraverseClosing   TraverseState = "CLOSING"
	TraverseCommitted TraverseState = "COMMITTED"
)

// Traverse is an ordered chain of legs and the points they touch.
type Traverse struct {
	ID         int               `json:"id"`
	State      TraverseState     `json:"state"`
	Start      int               `json:"start"`
	Points     []int             `json:"points"`
	Created    []int             `json:"created"`
	Legs       []Leg             `json:"legs"`
	ClosingRef *int              `json:"closing_ref,omitempty"`
	Misclosure *Misclosure       `json:"misclosure,omitempty"`
	Adjustment *AdjustmentResult `json:"adjustment,omitempty"`
}

// Last returns the most recently reached point number.
func (t *Traverse) Last() int {
	return t.Points[len(t.Points)-1]
}

// Clone returns a deep copy safe to hand to callers.
func (t *Traverse) Clone() Traverse {
	c := *t
	c.Points = append([]int(nil), t.Points...)
	c.Created = append([]int(nil), t.Created...)
	c.Legs = make([]Leg, len(t.Legs))
	for i, l := range t.Legs {
		if l.Arc != nil {
			arc := *l.Arc
			l.Arc = &arc
		}
		c.Legs[i] = l
	}
	if t.ClosingRef != nil {
		ref := *t.ClosingRef
		c.ClosingRef = &ref
	}
	if t.Misclosure != nil {
		m := *t.Misclosure
		c.Misclosure = &m
	}
	if t.Adjustment != nil {
		a := *t.Adjustment
		a.Corrections = append([]Correction(nil), t.Adjustment.Corrections...)
		c.Adjustment = &a
	}
	return c
}

// Misclosure is the gap between a traverse's computed end and its closing point.
// Deltas point from the computed end towards the closing point.
type Misclosure struct {
	TraverseID     int              `json:"traverse_id"`
	From           int              `json:"from"`
	To             int              `json:"to"`
	DeltaEasting   float64          `json:"delta_easting"`
	DeltaNorthing  float64          `json:"delta_northing"`
	LinearError    float64          `json:"linear_error"`
	Bearing        geospatial.Angle `json:"bearing"`
	TraverseLength float64          `json:"traverse_length"`
	Precision      float64          `json:"precision"` // 1:n, zero for a perfect close
	Band           ToleranceBand    `json:"band"`
}

// Millimetres returns the linear error in millimetres.
func (m Misclosure) Millimetres() float64 {
	return m.LinearError * 1000
}

// Correction is the shift applied to one traverse point by an adjustment.
// Easting/Northing are cumulative from the start; Leg* are the increments of the leg ending at the point.
type Correction struct {
	Point        int     `json:"point"`
	Easting      float64 `json:"easting"`
	Northing     float64 `json:"northing"`
	LegEasting   float64 `json:"leg_easting"`
	LegNorthing  float64 `json:"leg_northing"`
	Cumulative   float64 `json:"cumulative_distance"`
	Proportional float64 `json:"ratio"`
}

// AdjustmentResult reports a compass-rule adjustment attempt.
type AdjustmentResult struct {
	TraverseID    int          `json:"traverse_id"`
	Success       bool         `json:"success"`
	DeltaEasting  float64      `json:"delta_easting"`
	DeltaNorthing float64      `json:"delta_northing"`
	PreAdjust     float64      `json:"close_pre_adjust"`
	PostAdjust    float64      `json:"close_post_adjust"`
	Tolerance     float64      `json:"tolerance"`
	Corrections   []Correction `json:"corrections"`
}

// Err returns ErrAdjustmentToleranceExceeded when the adjustment was not applied.
func (r AdjustmentResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%w: residual %.4f > %.4f", ErrAdjustmentToleranceExceeded, r.PostAdjust, r.Tolerance)
}

// CloseSuggestion is an existing point found near a freshly computed one.
type CloseSuggestion struct {
	Point      Point      `json:"point"`
	Misclosure Misclosure `json:"misclosure"`
}

// Extension is the outcome of adding one leg to the active traverse.
type Extension struct {
	Point      Point            `json:"point"`
	Leg        Leg              `json:"leg"`
	Suggestion *CloseSuggestion `json:"close_suggestion,omitempty"`
}

// PolygonType classifies a polygon.
type PolygonType string

const (
	PolygonParcel   PolygonType = "PARCEL"
	PolygonEasement PolygonType = "EASEMENT"
	PolygonRoad     PolygonType = "ROAD"
)

// ParsePolygonType accepts PARCEL, EASEMENT or ROAD in any case. Empty defaults to PARCEL.
func ParsePolygonType(s string) (PolygonType, error) {
	switch PolygonType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", PolygonParcel:
		return PolygonParcel, nil
	case PolygonEasement:
		return PolygonEasement, nil
	case PolygonRoad:
		return PolygonRoad, nil
	}
	return "", fmt.Errorf("unknown polygon type %q", s)
}

// PolygonMeta is the descriptive part of a polygon as entered from the plan.
type PolygonMeta struct {
	PlanNumber  string      `json:"plan_number"`
	LotNumber   string      `json:"lot_number"`
	Description string      `json:"description,omitempty"`
	Type        PolygonType `json:"type"`
	StatedArea  *float64    `json:"stated_area,omitempty"`
}

// Polygon is a resolved lot boundary. Measures are derived from the current point coordinates.
type Polygon struct {
	PolygonMeta
	Points          []int      `json:"points"`
	SignedArea      float64    `json:"signed_area"`
	Area            float64    `json:"area"`
	Centroid        Coordinate `json:"centroid"`
	Bounds          Bounds     `json:"bounds"`
	Label           string     `json:"label"`
	AreaDiscrepancy *float64   `json:"area_discrepancy,omitempty"`
}

// Clockwise reports the winding of the vertex order.
func (p Polygon) Clockwise() bool {
	return p.SignedArea < 0
}

// Record converts the polygon into its persisted row.
func (p Polygon) Record() PolygonRecord {
	return PolygonRecord{
		LotNumber:   p.LotNumber,
		PlanNumber:  p.PlanNumber,
		Type:        p.Type,
		Description: p.Description,
		Points:      append([]int(nil), p.Points...),
		Area:        p.Area,
		StatedArea:  p.StatedArea,
	}
}

// PolygonRecord is a row of the polygons table.
type PolygonRecord struct {
	LotNumber   string      `json:"lot_number"`
	PlanNumber  string      `json:"plan_number"`
	Type        PolygonType `json:"type"`
	Description string      `json:"description,omitempty"`
	Points      []int       `json:"points"`
	Area        float64     `json:"area"`
	StatedArea  *float64    `json:"stated_area,omitempty"`
}

// Meta returns the descriptive fields of the record.
func (r PolygonRecord) Meta() PolygonMeta {
	return PolygonMeta{
		PlanNumber:  r.PlanNumber,
		LotNumber:   r.LotNumber,
		Description: r.Description,
		Type:        r.Type,
		StatedArea:  r.StatedArea,
	}
}

// PlanSnapshot is the two-table persisted form of a cadastral plan.
type PlanSnapshot struct {
	PlanID   string          `json:"plan_id"`
	Name     string          `json:"name"`
	Points   []Point         `json:"points"`
	Polygons []PolygonRecord `json:"polygons"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// PlanInfo summarises a plan held by the service.
type PlanInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Points         int       `json:"points"`
	Polygons       int       `json:"polygons"`
	Traverses      int       `json:"traverses"`
	ActiveTraverse bool      `json:"active_traverse"`
	Revision       uint64    `json:"revision"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
