package survey

import (
	"errors"
	"fmt"
	"math"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/pkg/geospatial"
)

// ComputeMisclosure measures the gap between the traverse's last point and the candidate closing point.
// It reads coordinates only.
func ComputeMisclosure(src PointSource, t *domain.Traverse, candidate int) (domain.Misclosure, error) {
	if t == nil || len(t.Points) == 0 {
		return domain.Misclosure{}, domain.ErrNoActiveTraverse
	}
	last, err := src.Get(t.Last())
	if err != nil {
		return domain.Misclosure{}, err
	}
	cand, err := src.Get(candidate)
	if err != nil {
		return domain.Misclosure{}, err
	}
	cum := cumulativeDistances(t)

	dE := cand.Easting - last.Easting
	dN := cand.Northing - last.Northing
	bearing, linear := geospatial.Inverse(last.Easting, last.Northing, cand.Easting, cand.Northing)
	length := cum[last.Number]

	m := domain.Misclosure{
		TraverseID:     t.ID,
		From:           last.Number,
		To:             cand.Number,
		DeltaEasting:   dE,
		DeltaNorthing:  dN,
		LinearError:    linear,
		Bearing:        bearing,
		TraverseLength: length,
		Band:           domain.ClassifyMisclosure(linear * 1000),
	}
	if linear > 0 {
		m.Precision = length / linear
	}
	return m, nil
}

// cumulativeDistances walks the legs in order and returns the distance travelled from the
// start to every point the legs reach, measured along the arc for curved legs.
// Sources outside the traverse count as fixed (distance 0).
func cumulativeDistances(t *domain.Traverse) map[int]float64 {
	cum := map[int]float64{t.Start: 0}
	for _, l := range t.Legs {
		cum[l.To] = cum[l.From] + l.PathLength()
	}
	return cum
}

// AdjustTraverse distributes (dE, dN) over the traverse by the compass (Bowditch) rule:
// each point after the start moves by cumulative/total of the correction, so the last
// point moves by exactly (dE, dN). The adjusted coordinates and re-derived legs are built
// aside and only swapped into the store when the post-adjustment closure is within tolerance.
// An out-of-tolerance result is reported through AdjustmentResult.Err, not the returned error.
func AdjustTraverse(store *PointStore, t *domain.Traverse, dE, dN, tolerance float64) (domain.AdjustmentResult, error) {
	if t == nil || len(t.Points) == 0 {
		return domain.AdjustmentResult{}, domain.ErrNoActiveTraverse
	}
	if t.ClosingRef == nil {
		return domain.AdjustmentResult{}, domain.ErrNoClosingCandidate
	}

	res := domain.AdjustmentResult{
		TraverseID:    t.ID,
		DeltaEasting:  dE,
		DeltaNorthing: dN,
		PreAdjust:     math.Hypot(dE, dN),
		Tolerance:     tolerance,
	}

	cum := cumulativeDistances(t)
	last := t.Last()
	total := cum[last]

	current := func(n int) (domain.Coordinate, error) {
		pt, err := store.Get(n)
		if err != nil {
			return domain.Coordinate{}, err
		}
		return pt.Coordinate(), nil
	}

	if total == 0 {
		// nothing to distribute over; only a zero correction can succeed
		res.PostAdjust = res.PreAdjust
		res.Success = res.PreAdjust <= tolerance
		return res, nil
	}

	shift := make(map[int]domain.Coordinate, len(t.Points))
	adjusted := make(map[int]domain.Coordinate, len(t.Points))
	for _, n := range t.Points {
		if n == t.Start {
			continue
		}
		c, err := current(n)
		if err != nil {
			return domain.AdjustmentResult{}, err
		}
		ratio := cum[n] / total
		s := domain.Coordinate{Easting: ratio * dE, Northing: ratio * dN}
		shift[n] = s
		adjusted[n] = domain.Coordinate{Easting: c.Easting + s.Easting, Northing: c.Northing + s.Northing}
	}

	coordOf := func(n int) (domain.Coordinate, error) {
		if c, ok := adjusted[n]; ok {
			return c, nil
		}
		return current(n)
	}

	legByDest := make(map[int]domain.Leg, len(t.Legs))
	for _, l := range t.Legs {
		legByDest[l.To] = l
	}
	for _, n := range t.Points {
		s, ok := shift[n]
		if !ok {
			continue
		}
		c := domain.Correction{
			Point:        n,
			Easting:      s.Easting,
			Northing:     s.Northing,
			Cumulative:   cum[n],
			Proportional: cum[n] / total,
		}
		if l, ok := legByDest[n]; ok {
			from := shift[l.From]
			c.LegEasting = s.Easting - from.Easting
			c.LegNorthing = s.Northing - from.Northing
		}
		res.Corrections = append(res.Corrections, c)
	}

	lastC, err := coordOf(last)
	if err != nil {
		return domain.AdjustmentResult{}, err
	}
	closeC, err := coordOf(*t.ClosingRef)
	if err != nil {
		return domain.AdjustmentResult{}, err
	}
	res.PostAdjust = math.Hypot(closeC.Easting-lastC.Easting, closeC.Northing-lastC.Northing)
	res.Success = res.PostAdjust <= tolerance
	if !res.Success {
		return res, nil
	}

	legs := make([]domain.Leg, len(t.Legs))
	for i, l := range t.Legs {
		if s := shift[l.To]; s == shift[l.From] {
			legs[i] = l
			continue
		}
		from, err := coordOf(l.From)
		if err != nil {
			return domain.AdjustmentResult{}, err
		}
		to := adjusted[l.To]
		rederived, err := rederiveLeg(l, from, to)
		if err != nil {
			return domain.AdjustmentResult{}, fmt.Errorf("leg %d-%d: %w", l.From, l.To, err)
		}
		legs[i] = rederived
	}

	for n, c := range adjusted {
		store.move(n, c)
	}
	t.Legs = legs
	return res, nil
}

// rederiveLeg recomputes a leg's observations so that it reproduces the adjusted destination.
func rederiveLeg(l domain.Leg, from, to domain.Coordinate) (domain.Leg, error) {
	bearing, dist := geospatial.Inverse(from.Easting, from.Northing, to.Easting, to.Northing)
	if dist == 0 {
		return domain.Leg{}, errors.New("adjusted leg has zero length")
	}
	out := l
	out.Adjusted = true
	if l.Arc == nil {
		out.Bearing = bearing
		out.Distance = dist
		return out, nil
	}
	tangent, length, err := geospatial.ArcFromChord(bearing, dist, l.Arc.Radius, l.Arc.Rotation, l.Arc.Major)
	if err != nil {
		return domain.Leg{}, err
	}
	arc := *l.Arc
	arc.Length = length
	out.Arc = &arc
	out.Bearing = tangent
	out.Distance = dist
	return out, nil
}

// Misclosure computes the misclosure of the active traverse against its closing candidate
// and records it on the traverse. It never adjusts.
func (p *Plan) Misclosure() (domain.Misclosure, error) {
	t := p.active
	if t == nil {
		return domain.Misclosure{}, domain.ErrNoActiveTraverse
	}
	if t.ClosingRef == nil {
		return domain.Misclosure{}, domain.ErrNoClosingCandidate
	}
	m, err := ComputeMisclosure(p.store, t, *t.ClosingRef)
	if err != nil {
		return domain.Misclosure{}, err
	}
	t.Misclosure = &m
	return m, nil
}

// Adjust applies a confirmed misclosure correction to the active traverse.
// On an out-of-tolerance result nothing moves and the traverse stays open for another attempt.
func (p *Plan) Adjust(dE, dN float64) (domain.AdjustmentResult, error) {
	t := p.active
	if t == nil {
		return domain.AdjustmentResult{}, domain.ErrNoActiveTraverse
	}
	res, err := AdjustTraverse(p.store, t, dE, dN, p.opts.AdjustmentTolerance)
	if err != nil {
		return domain.AdjustmentResult{}, err
	}
	t.Adjustment = &res
	if res.Success {
		t.Misclosure = nil
		p.revision++
	}
	return res, nil
}
