package survey

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// minArea is the smallest |signed area| (m²) accepted for a polygon.
const minArea = 1e-9

// BuildPolygon resolves refs against src and computes the polygon's measures.
// The ring is implicitly closed; a trailing repeat of the first reference is ignored.
func BuildPolygon(src PointSource, refs []int, meta domain.PolygonMeta) (domain.Polygon, error) {
	refs = append([]int(nil), refs...)
	if len(refs) > 1 && refs[len(refs)-1] == refs[0] {
		refs = refs[:len(refs)-1]
	}
	if len(refs) < 3 {
		return domain.Polygon{}, fmt.Errorf("%w: %d vertices", domain.ErrDegeneratePolygon, len(refs))
	}

	seen := make(map[int]bool, len(refs))
	ring := make([]domain.Coordinate, len(refs))
	for i, n := range refs {
		if seen[n] {
			return domain.Polygon{}, fmt.Errorf("%w: point %d repeated", domain.ErrDegeneratePolygon, n)
		}
		seen[n] = true
		pt, err := src.Get(n)
		if err != nil {
			return domain.Polygon{}, err
		}
		ring[i] = pt.Coordinate()
	}

	signed, centroid := shoelace(ring)
	if math.Abs(signed) < minArea {
		return domain.Polygon{}, fmt.Errorf("%w: zero area", domain.ErrDegeneratePolygon)
	}

	if meta.Type == "" {
		meta.Type = domain.PolygonParcel
	}
	poly := domain.Polygon{
		PolygonMeta: meta,
		Points:      refs,
		SignedArea:  signed,
		Area:        math.Abs(signed),
		Centroid:    centroid,
		Bounds:      ringBounds(ring),
	}
	poly.Label = label(poly)
	if meta.StatedArea != nil {
		d := poly.Area - *meta.StatedArea
		poly.AreaDiscrepancy = &d
	}
	return poly, nil
}

// shoelace returns the signed area (counter-clockwise positive) and the
// area-weighted centroid. Coordinates are shifted to the first vertex so
// large grid values do not swamp the cross products.
func shoelace(ring []domain.Coordinate) (float64, domain.Coordinate) {
	e0, n0 := ring[0].Easting, ring[0].Northing
	var a, cx, cy float64
	for i := range ring {
		j := (i + 1) % len(ring)
		xi, yi := ring[i].Easting-e0, ring[i].Northing-n0
		xj, yj := ring[j].Easting-e0, ring[j].Northing-n0
		cross := xi*yj - xj*yi
		a += cross
		cx += (xi + xj) * cross
		cy += (yi + yj) * cross
	}
	a /= 2
	if a == 0 {
		return 0, domain.Coordinate{}
	}
	return a, domain.Coordinate{
		Easting:  e0 + cx/(6*a),
		Northing: n0 + cy/(6*a),
	}
}

func ringBounds(ring []domain.Coordinate) domain.Bounds {
	mp := make(orb.MultiPoint, len(ring))
	for i, c := range ring {
		mp[i] = orb.Point{c.Easting, c.Northing}
	}
	b := mp.Bound()
	return domain.Bounds{
		MinEasting:  b.Min.X(),
		MinNorthing: b.Min.Y(),
		MaxEasting:  b.Max.X(),
		MaxNorthing: b.Max.Y(),
	}
}

func label(p domain.Polygon) string {
	if p.Type != domain.PolygonParcel {
		return p.Description
	}
	var b strings.Builder
	fmt.Fprintf(&b, "LOT %s\n%s\nArea: %.2fm2", p.LotNumber, p.PlanNumber, p.Area)
	return b.String()
}

// PreviewPolygon resolves a polygon against the current points without committing it.
func (p *Plan) PreviewPolygon(refs []int, meta domain.PolygonMeta) (domain.Polygon, error) {
	return BuildPolygon(p.store, refs, meta)
}

// CommitPolygon stores a resolved polygon under its lot number and pins its points.
func (p *Plan) CommitPolygon(poly domain.Polygon) error {
	if err := p.checkCommittable(poly); err != nil {
		return err
	}
	if _, ok := p.polygons[poly.LotNumber]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateLotNumber, poly.LotNumber)
	}
	p.storePolygon(poly)
	p.lots = append(p.lots, poly.LotNumber)
	p.revision++
	return nil
}

// ReplacePolygon overwrites the polygon with the same lot number, or adds it.
func (p *Plan) ReplacePolygon(poly domain.Polygon) error {
	if err := p.checkCommittable(poly); err != nil {
		return err
	}
	if old, ok := p.polygons[poly.LotNumber]; ok {
		for _, n := range old.refs {
			p.store.Unpin(n)
		}
	} else {
		p.lots = append(p.lots, poly.LotNumber)
	}
	p.storePolygon(poly)
	p.revision++
	return nil
}

// RemovePolygon drops a committed polygon and releases its points.
func (p *Plan) RemovePolygon(lot string) error {
	def, ok := p.polygons[lot]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPolygonNotFound, lot)
	}
	for _, n := range def.refs {
		p.store.Unpin(n)
	}
	delete(p.polygons, lot)
	for i, l := range p.lots {
		if l == lot {
			p.lots = append(p.lots[:i], p.lots[i+1:]...)
			break
		}
	}
	p.revision++
	return nil
}

// Polygon re-resolves a committed polygon from the current point coordinates.
func (p *Plan) Polygon(lot string) (domain.Polygon, error) {
	def, ok := p.polygons[lot]
	if !ok {
		return domain.Polygon{}, fmt.Errorf("%w: %s", domain.ErrPolygonNotFound, lot)
	}
	return BuildPolygon(p.store, def.refs, def.meta)
}

// Polygons re-resolves every committed polygon in commit order.
func (p *Plan) Polygons() ([]domain.Polygon, error) {
	out := make([]domain.Polygon, 0, len(p.lots))
	for _, lot := range p.lots {
		poly, err := p.Polygon(lot)
		if err != nil {
			return nil, fmt.Errorf("lot %s: %w", lot, err)
		}
		out = append(out, poly)
	}
	return out, nil
}

func (p *Plan) checkCommittable(poly domain.Polygon) error {
	if strings.TrimSpace(poly.LotNumber) == "" {
		return domain.ErrMissingLotNumber
	}
	if len(poly.Points) < 3 {
		return fmt.Errorf("%w: %d vertices", domain.ErrDegeneratePolygon, len(poly.Points))
	}
	for _, n := range poly.Points {
		if !p.store.Has(n) {
			return fmt.Errorf("%w: %d", domain.ErrPointNotFound, n)
		}
		if p.active != nil && containsInt(p.active.Created, n) {
			return fmt.Errorf("%w: point %d belongs to traverse %d", domain.ErrTraverseInProgress, n, p.active.ID)
		}
	}
	return nil
}

func (p *Plan) storePolygon(poly domain.Polygon) {
	refs := append([]int(nil), poly.Points...)
	for _, n := range refs {
		p.store.Pin(n)
	}
	p.polygons[poly.LotNumber] = polygonDef{meta: poly.PolygonMeta, refs: refs}
}
