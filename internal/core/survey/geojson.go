package survey

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// FeatureCollection renders the plan for map and sheet renderers: one Point
// feature per live point, one Polygon feature per committed lot, and one
// LineString feature per leg of the committed and active traverses.
// Coordinates are grid (easting, northing); renderers apply their own screen transform.
func (p *Plan) FeatureCollection() (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()

	for _, pt := range p.store.Points() {
		f := geojson.NewFeature(orb.Point{pt.Easting, pt.Northing})
		f.ID = pt.Number
		f.Properties["kind"] = "point"
		f.Properties["number"] = pt.Number
		f.Properties["elevation"] = pt.Elevation
		f.Properties["layer"] = string(pt.Layer)
		if pt.Code != "" {
			f.Properties["code"] = pt.Code
		}
		fc.Append(f)
	}

	polys, err := p.Polygons()
	if err != nil {
		return nil, err
	}
	for _, poly := range polys {
		ring := make(orb.Ring, 0, len(poly.Points)+1)
		for _, n := range poly.Points {
			pt, err := p.store.Get(n)
			if err != nil {
				return nil, err
			}
			ring = append(ring, orb.Point{pt.Easting, pt.Northing})
		}
		ring = append(ring, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = poly.LotNumber
		f.Properties["kind"] = "polygon"
		f.Properties["lot_number"] = poly.LotNumber
		f.Properties["plan_number"] = poly.PlanNumber
		f.Properties["type"] = string(poly.Type)
		f.Properties["area"] = poly.Area
		f.Properties["label"] = poly.Label
		f.Properties["centroid"] = []float64{poly.Centroid.Easting, poly.Centroid.Northing}
		fc.Append(f)
	}

	add := func(t *domain.Traverse) error {
		for _, l := range t.Legs {
			from, err := p.store.Get(l.From)
			if err != nil {
				return err
			}
			to, err := p.store.Get(l.To)
			if err != nil {
				return err
			}
			f := geojson.NewFeature(orb.LineString{
				{from.Easting, from.Northing},
				{to.Easting, to.Northing},
			})
			f.Properties["kind"] = "leg"
			f.Properties["traverse_id"] = t.ID
			f.Properties["state"] = string(t.State)
			f.Properties["from"] = l.From
			f.Properties["to"] = l.To
			f.Properties["bearing"] = l.BearingDMS()
			f.Properties["distance"] = l.Distance
			if l.Arc != nil {
				f.Properties["radius"] = l.Arc.Radius
				f.Properties["rotation"] = string(l.Arc.Rotation)
				f.Properties["arc_length"] = l.Arc.Length
			}
			fc.Append(f)
		}
		return nil
	}
	for i := range p.traverses {
		if err := add(&p.traverses[i]); err != nil {
			return nil, err
		}
	}
	if p.active != nil {
		if err := add(p.active); err != nil {
			return nil, err
		}
	}
	return fc, nil
}
