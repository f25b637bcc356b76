package survey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

func TestNewPlan_Defaults(t *testing.T) {
	p := NewPlan(Options{CaptureRadius: -1})
	assert.Equal(t, 0.0, p.Options().CaptureRadius)
	assert.Equal(t, 0.001, p.Options().AdjustmentTolerance)
}

func TestAddPoint_DefaultLayerAndDuplicate(t *testing.T) {
	p := NewPlan(DefaultOptions())
	pt, err := p.AddPoint(domain.Point{Number: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.LayerBoundary, pt.Layer)
	assert.Equal(t, uint64(1), p.Revision())

	_, err = p.AddPoint(domain.Point{Number: 1})
	assert.True(t, errors.Is(err, domain.ErrDuplicatePointNumber))
	assert.Equal(t, uint64(1), p.Revision())
}

func TestSnapshot_ExcludesOpenTraversePoints(t *testing.T) {
	p := squarePlan(t)
	_, err := p.StartTraverse(domain.Point{Number: 1})
	require.NoError(t, err)
	_, err = p.ExtendByBearingDistance(BearingDistance{From: 1, Bearing: 30, Distance: 3, Number: 20})
	require.NoError(t, err)

	snap, err := p.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Points, 4)
	for _, pt := range snap.Points {
		assert.NotEqual(t, 20, pt.Number)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	p := squarePlan(t)
	stated := 100.0
	poly, err := p.PreviewPolygon([]int{1, 2, 3, 4}, domain.PolygonMeta{
		LotNumber: "7", PlanNumber: "DP 99", Type: domain.PolygonParcel, StatedArea: &stated,
	})
	require.NoError(t, err)
	require.NoError(t, p.CommitPolygon(poly))

	snap, err := p.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Polygons, 1)
	assert.Equal(t, []int{1, 2, 3, 4}, snap.Polygons[0].Points)
	assert.InDelta(t, 100, snap.Polygons[0].Area, 1e-12)

	restored, err := Restore(snap, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), restored.Revision())
	assert.Equal(t, p.Points(), restored.Points())

	got, err := restored.Polygon("7")
	require.NoError(t, err)
	assert.Equal(t, poly, got)
	assert.True(t, errors.Is(restored.RemovePoint(2), domain.ErrPointInUse))
}

func TestRestore_RejectsBrokenPolygon(t *testing.T) {
	snap := domain.PlanSnapshot{
		Points: []domain.Point{{Number: 1}, {Number: 2, Easting: 1}},
		Polygons: []domain.PolygonRecord{
			{LotNumber: "1", Points: []int{1, 2, 3}},
		},
	}
	_, err := Restore(snap, DefaultOptions())
	assert.True(t, errors.Is(err, domain.ErrPointNotFound))
}
