package survey

import (
	"fmt"
	"math"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// PointSource resolves point numbers to points.
type PointSource interface {
	Get(number int) (domain.Point, error)
}

type slot struct {
	point domain.Point
	live  bool
}

// PointStore holds survey points keyed by number, in insertion order.
// Removed points leave a dead slot until the arena is compacted.
type PointStore struct {
	slots []slot
	index map[int]int
	pins  map[int]int
	dead  int
}

// NewPointStore creates an empty store.
func NewPointStore() *PointStore {
	return &PointStore{
		index: make(map[int]int),
		pins:  make(map[int]int),
	}
}

// Add inserts a point. The number must not be live.
func (s *PointStore) Add(p domain.Point) error {
	if _, ok := s.index[p.Number]; ok {
		return fmt.Errorf("%w: %d", domain.ErrDuplicatePointNumber, p.Number)
	}
	if math.IsNaN(p.Easting) || math.IsNaN(p.Northing) || math.IsInf(p.Easting, 0) || math.IsInf(p.Northing, 0) {
		return fmt.Errorf("point %d has non-finite coordinates", p.Number)
	}
	s.index[p.Number] = len(s.slots)
	s.slots = append(s.slots, slot{point: p, live: true})
	return nil
}

// Get returns the live point with the given number.
func (s *PointStore) Get(number int) (domain.Point, error) {
	i, ok := s.index[number]
	if !ok {
		return domain.Point{}, fmt.Errorf("%w: %d", domain.ErrPointNotFound, number)
	}
	return s.slots[i].point, nil
}

// Has reports whether number is live.
func (s *PointStore) Has(number int) bool {
	_, ok := s.index[number]
	return ok
}

// Len returns the number of live points.
func (s *PointStore) Len() int {
	return len(s.index)
}

// Remove deletes a point that is not pinned by a committed polygon or traverse.
func (s *PointStore) Remove(number int) error {
	i, ok := s.index[number]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrPointNotFound, number)
	}
	if s.pins[number] > 0 {
		return fmt.Errorf("%w: %d is referenced %d time(s)", domain.ErrPointInUse, number, s.pins[number])
	}
	s.slots[i].live = false
	delete(s.index, number)
	s.dead++
	if s.dead > 32 && s.dead*2 > len(s.slots) {
		s.compact()
	}
	return nil
}

// Pin records a committed reference to a point.
func (s *PointStore) Pin(number int) {
	s.pins[number]++
}

// Unpin releases a reference taken by Pin.
func (s *PointStore) Unpin(number int) {
	if s.pins[number] <= 1 {
		delete(s.pins, number)
		return
	}
	s.pins[number]--
}

// Pinned reports whether a committed polygon or traverse references the point.
func (s *PointStore) Pinned(number int) bool {
	return s.pins[number] > 0
}

// Points returns a copy of the live points in insertion order.
func (s *PointStore) Points() []domain.Point {
	out := make([]domain.Point, 0, len(s.index))
	for _, sl := range s.slots {
		if sl.live {
			out = append(out, sl.point)
		}
	}
	return out
}

// Nearest returns the closest live point within radius of c, skipping numbers for which skip returns true.
func (s *PointStore) Nearest(c domain.Coordinate, radius float64, skip func(int) bool) (domain.Point, bool) {
	var best domain.Point
	bestDist := math.Inf(1)
	for _, sl := range s.slots {
		if !sl.live || (skip != nil && skip(sl.point.Number)) {
			continue
		}
		d := math.Hypot(sl.point.Easting-c.Easting, sl.point.Northing-c.Northing)
		if d <= radius && d < bestDist {
			best, bestDist = sl.point, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// move overwrites the coordinates of a live point.
func (s *PointStore) move(number int, c domain.Coordinate) {
	i, ok := s.index[number]
	if !ok {
		return
	}
	s.slots[i].point.Easting = c.Easting
	s.slots[i].point.Northing = c.Northing
}

func (s *PointStore) compact() {
	live := make([]slot, 0, len(s.index))
	for _, sl := range s.slots {
		if sl.live {
			s.index[sl.point.Number] = len(live)
			live = append(live, sl)
		}
	}
	s.slots = live
	s.dead = 0
}
