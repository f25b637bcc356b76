// Package survey is the coordinate-geometry core: point store, traverse
// engine, closing and compass-rule adjustment, and polygon assembly.
//
// A Plan is not safe for concurrent use. Callers that share one across
// goroutines must serialise access to it.
package survey

import (
	"fmt"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// Options tune the engine.
type Options struct {
	// CaptureRadius is how close (metres) a computed point must fall to an
	// existing one for the engine to suggest it as a closing point.
	CaptureRadius float64
	// AdjustmentTolerance is the largest post-adjustment closure accepted.
	AdjustmentTolerance float64
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		CaptureRadius:       0.05,
		AdjustmentTolerance: 0.001,
	}
}

type polygonDef struct {
	meta domain.PolygonMeta
	refs []int
}

// Plan is the cadastral plan aggregate: the point store, committed polygons
// keyed by lot number, committed traverses, and at most one active traverse.
type Plan struct {
	opts      Options
	store     *PointStore
	polygons  map[string]polygonDef
	lots      []string
	traverses []domain.Traverse
	active    *domain.Traverse
	nextID    int
	revision  uint64
}

// NewPlan creates an empty plan.
func NewPlan(opts Options) *Plan {
	if opts.CaptureRadius < 0 {
		opts.CaptureRadius = 0
	}
	if opts.AdjustmentTolerance <= 0 {
		opts.AdjustmentTolerance = DefaultOptions().AdjustmentTolerance
	}
	return &Plan{
		opts:     opts,
		store:    NewPointStore(),
		polygons: make(map[string]polygonDef),
	}
}

// Options returns the plan's engine options.
func (p *Plan) Options() Options {
	return p.opts
}

// Revision increases on every successful mutation.
func (p *Plan) Revision() uint64 {
	return p.revision
}

// Store exposes read access to the point store.
func (p *Plan) Store() PointSource {
	return p.store
}

// AddPoint enters a point with known coordinates outside any traverse.
func (p *Plan) AddPoint(pt domain.Point) (domain.Point, error) {
	if pt.Layer == "" {
		pt.Layer = domain.LayerBoundary
	}
	if err := p.store.Add(pt); err != nil {
		return domain.Point{}, err
	}
	p.revision++
	return pt, nil
}

// Point returns a live point.
func (p *Plan) Point(number int) (domain.Point, error) {
	return p.store.Get(number)
}

// Points returns all live points in entry order.
func (p *Plan) Points() []domain.Point {
	return p.store.Points()
}

// RemovePoint deletes a point. Points referenced by committed polygons or
// traverses are refused. Inside the open traverse the removal cascades: every
// leg from or to the point is dropped, and so is every point the traverse
// computed through those legs.
func (p *Plan) RemovePoint(number int) error {
	if !p.store.Has(number) {
		return fmt.Errorf("%w: %d", domain.ErrPointNotFound, number)
	}
	if p.store.Pinned(number) {
		return p.store.Remove(number)
	}

	removed := []int{number}
	if t := p.active; t != nil && touches(t, number) {
		removed = cascade(t, number)
		for _, n := range removed[1:] {
			if p.store.Pinned(n) {
				return fmt.Errorf("%w: removing %d drops %d, which is referenced", domain.ErrPointInUse, number, n)
			}
		}
		dropFromTraverse(t, removed)
		if len(t.Points) == 0 {
			p.active = nil
		}
	}

	for _, n := range removed {
		if err := p.store.Remove(n); err != nil {
			return err
		}
	}
	p.revision++
	return nil
}

// touches reports whether the traverse refers to number in any way.
func touches(t *domain.Traverse, number int) bool {
	if containsInt(t.Points, number) || (t.ClosingRef != nil && *t.ClosingRef == number) {
		return true
	}
	for _, l := range t.Legs {
		if l.From == number || l.To == number {
			return true
		}
	}
	return false
}

// cascade returns number followed by every point of t computed through a leg
// that starts at number or at another point in the result.
func cascade(t *domain.Traverse, number int) []int {
	gone := map[int]bool{number: true}
	out := []int{number}
	for changed := true; changed; {
		changed = false
		for _, l := range t.Legs {
			if gone[l.From] && !gone[l.To] && containsInt(t.Created, l.To) {
				gone[l.To] = true
				out = append(out, l.To)
				changed = true
			}
		}
	}
	return out
}

// dropFromTraverse strips the removed points and every leg touching them from t.
func dropFromTraverse(t *domain.Traverse, removed []int) {
	gone := make(map[int]bool, len(removed))
	for _, n := range removed {
		gone[n] = true
	}

	legs := t.Legs[:0]
	for _, l := range t.Legs {
		if !gone[l.From] && !gone[l.To] {
			legs = append(legs, l)
		}
	}
	t.Legs = legs
	for _, n := range removed {
		t.Points = removeInt(t.Points, n)
		t.Created = removeInt(t.Created, n)
	}
	if t.ClosingRef != nil && gone[*t.ClosingRef] {
		t.ClosingRef = nil
		t.State = domain.TraverseOpen
	}
	t.Misclosure = nil
	t.Adjustment = nil
	if gone[t.Start] && len(t.Points) > 0 {
		t.Start = t.Points[0]
	}
}

// Snapshot returns the committed state of the plan as the two persisted tables.
// Points created by the open traverse are working state and are left out.
func (p *Plan) Snapshot() (domain.PlanSnapshot, error) {
	transient := make(map[int]bool)
	if p.active != nil {
		for _, n := range p.active.Created {
			transient[n] = true
		}
	}

	var snap domain.PlanSnapshot
	for _, pt := range p.store.Points() {
		if !transient[pt.Number] {
			snap.Points = append(snap.Points, pt)
		}
	}

	polys, err := p.Polygons()
	if err != nil {
		return domain.PlanSnapshot{}, err
	}
	for _, poly := range polys {
		snap.Polygons = append(snap.Polygons, poly.Record())
	}
	return snap, nil
}

// Restore rebuilds a plan from its persisted tables, re-resolving every polygon.
func Restore(snap domain.PlanSnapshot, opts Options) (*Plan, error) {
	p := NewPlan(opts)
	for _, pt := range snap.Points {
		if _, err := p.AddPoint(pt); err != nil {
			return nil, fmt.Errorf("restore point %d: %w", pt.Number, err)
		}
	}
	for _, rec := range snap.Polygons {
		poly, err := BuildPolygon(p.store, rec.Points, rec.Meta())
		if err != nil {
			return nil, fmt.Errorf("restore lot %s: %w", rec.LotNumber, err)
		}
		if err := p.CommitPolygon(poly); err != nil {
			return nil, fmt.Errorf("restore lot %s: %w", rec.LotNumber, err)
		}
	}
	p.revision = 0
	return p, nil
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeInt(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
