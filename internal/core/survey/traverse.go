package survey

import (
	"fmt"
	"log/slog"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/pkg/geospatial"
)

// BearingDistance asks for a new point along a straight leg.
type BearingDistance struct {
	From      int
	Bearing   geospatial.Angle
	Distance  float64
	Number    int
	Elevation float64
	Code      string
	Layer     domain.Layer
}

// ArcLeg asks for a new point at the end of a circular arc leaving From along Bearing (the tangent).
type ArcLeg struct {
	From      int
	Bearing   geospatial.Angle
	Radius    float64
	Rotation  geospatial.Rotation
	Length    float64
	Number    int
	Elevation float64
	Code      string
	Layer     domain.Layer
}

// StartTraverse opens a new traverse at first. A live point with the same
// number and coordinates is reused; otherwise the point is added.
// Only one traverse may be in progress: commit or discard it first.
func (p *Plan) StartTraverse(first domain.Point) (domain.Traverse, error) {
	if p.active != nil {
		return domain.Traverse{}, fmt.Errorf("%w: traverse %d is %s", domain.ErrTraverseInProgress, p.active.ID, p.active.State)
	}

	var created []int
	if existing, err := p.store.Get(first.Number); err == nil {
		if existing.Easting != first.Easting || existing.Northing != first.Northing {
			return domain.Traverse{}, fmt.Errorf("%w: %d already exists at (%.4f, %.4f)",
				domain.ErrDuplicatePointNumber, first.Number, existing.Easting, existing.Northing)
		}
	} else {
		if first.Layer == "" {
			first.Layer = domain.LayerBoundary
		}
		if err := p.store.Add(first); err != nil {
			return domain.Traverse{}, err
		}
		created = append(created, first.Number)
	}

	p.nextID++
	p.active = &domain.Traverse{
		ID:      p.nextID,
		State:   domain.TraverseOpen,
		Start:   first.Number,
		Points:  []int{first.Number},
		Created: created,
	}
	p.revision++
	return p.active.Clone(), nil
}

// ActiveTraverse returns the traverse in progress, if any.
func (p *Plan) ActiveTraverse() (domain.Traverse, bool) {
	if p.active == nil {
		return domain.Traverse{}, false
	}
	return p.active.Clone(), true
}

// Traverses returns the committed traverses in commit order.
func (p *Plan) Traverses() []domain.Traverse {
	out := make([]domain.Traverse, len(p.traverses))
	for i := range p.traverses {
		out[i] = p.traverses[i].Clone()
	}
	return out
}

// ExtendByBearingDistance computes a new point from a live source point and appends the leg.
func (p *Plan) ExtendByBearingDistance(req BearingDistance) (domain.Extension, error) {
	leg := domain.Leg{
		From:     req.From,
		To:       req.Number,
		Bearing:  req.Bearing,
		Distance: req.Distance,
	}
	return p.extend(leg, req.Elevation, req.Code, req.Layer)
}

// ExtendByArc computes a new point at the end of a circular arc and appends the leg.
func (p *Plan) ExtendByArc(req ArcLeg) (domain.Extension, error) {
	chord, err := geospatial.Chord(req.Bearing, req.Radius, req.Rotation, req.Length)
	if err != nil {
		return domain.Extension{}, err
	}
	leg := domain.Leg{
		From:     req.From,
		To:       req.Number,
		Bearing:  req.Bearing,
		Distance: chord.Length,
		Arc: &domain.Arc{
			Radius:   req.Radius,
			Rotation: req.Rotation,
			Length:   req.Length,
			Major:    chord.Subtends > 180,
		},
	}
	return p.extend(leg, req.Elevation, req.Code, req.Layer)
}

func (p *Plan) extend(leg domain.Leg, elevation float64, code string, layer domain.Layer) (domain.Extension, error) {
	t := p.active
	if t == nil {
		return domain.Extension{}, domain.ErrNoActiveTraverse
	}
	if t.State != domain.TraverseOpen {
		return domain.Extension{}, fmt.Errorf("%w: traverse %d is %s", domain.ErrTraverseNotOpen, t.ID, t.State)
	}

	src, err := p.store.Get(leg.From)
	if err != nil {
		return domain.Extension{}, fmt.Errorf("%w: %d", domain.ErrSourcePointNotFound, leg.From)
	}
	if p.store.Has(leg.To) {
		return domain.Extension{}, fmt.Errorf("%w: %d", domain.ErrDuplicatePointNumber, leg.To)
	}

	dest, err := leg.Apply(src.Coordinate())
	if err != nil {
		return domain.Extension{}, err
	}

	if layer == "" {
		layer = src.Layer
	}
	pt := domain.Point{
		Number:    leg.To,
		Easting:   dest.Easting,
		Northing:  dest.Northing,
		Elevation: elevation,
		Code:      code,
		Layer:     layer,
	}
	if err := p.store.Add(pt); err != nil {
		return domain.Extension{}, err
	}

	t.Points = append(t.Points, pt.Number)
	t.Created = append(t.Created, pt.Number)
	t.Legs = append(t.Legs, leg)
	t.Misclosure = nil
	t.Adjustment = nil
	p.revision++

	ext := domain.Extension{Point: pt, Leg: leg}
	ext.Suggestion = p.suggestClose(pt, leg.From)
	return ext, nil
}

// suggestClose looks for an existing point close enough to pt to be the intended closing point.
func (p *Plan) suggestClose(pt domain.Point, from int) *domain.CloseSuggestion {
	if p.opts.CaptureRadius <= 0 {
		return nil
	}
	near, ok := p.store.Nearest(pt.Coordinate(), p.opts.CaptureRadius, func(n int) bool {
		return n == pt.Number || n == from
	})
	if !ok {
		return nil
	}
	m, err := ComputeMisclosure(p.store, p.active, near.Number)
	if err != nil {
		slog.Debug("close suggestion skipped", "point", near.Number, "error", err)
		return nil
	}
	return &domain.CloseSuggestion{Point: near, Misclosure: m}
}

// MarkClosingCandidate records which existing point the traverse is expected to close on.
// Coordinates are not touched.
func (p *Plan) MarkClosingCandidate(number int) error {
	t := p.active
	if t == nil {
		return domain.ErrNoActiveTraverse
	}
	if !p.store.Has(number) {
		return fmt.Errorf("%w: %d", domain.ErrPointNotFound, number)
	}
	ref := number
	t.ClosingRef = &ref
	t.State = domain.TraverseClosing
	t.Misclosure = nil
	t.Adjustment = nil
	p.revision++
	return nil
}

// Reopen drops the closing candidate so the traverse can be extended again.
func (p *Plan) Reopen() error {
	t := p.active
	if t == nil {
		return domain.ErrNoActiveTraverse
	}
	t.ClosingRef = nil
	t.Misclosure = nil
	t.State = domain.TraverseOpen
	p.revision++
	return nil
}

// Commit folds the active traverse into the plan. Its points become
// committed and can no longer be removed while the traverse references them.
func (p *Plan) Commit() (domain.Traverse, error) {
	t := p.active
	if t == nil {
		return domain.Traverse{}, domain.ErrNoActiveTraverse
	}

	seen := make(map[int]bool)
	pin := func(n int) {
		if !seen[n] && p.store.Has(n) {
			seen[n] = true
			p.store.Pin(n)
		}
	}
	for _, l := range t.Legs {
		pin(l.From)
		pin(l.To)
	}

	t.State = domain.TraverseCommitted
	committed := t.Clone()
	p.traverses = append(p.traverses, committed)
	p.active = nil
	p.revision++
	return committed.Clone(), nil
}

// Discard abandons the active traverse and removes the points it created.
// Discarding with no traverse in progress is a no-op.
func (p *Plan) Discard() {
	t := p.active
	if t == nil {
		return
	}
	for _, n := range t.Created {
		if p.store.Pinned(n) {
			continue
		}
		_ = p.store.Remove(n)
	}
	p.active = nil
	p.revision++
}
