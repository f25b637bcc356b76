package survey

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

func TestFeatureCollection(t *testing.T) {
	p := squarePlan(t)
	poly, err := p.PreviewPolygon([]int{1, 2, 3, 4}, domain.PolygonMeta{LotNumber: "1", PlanNumber: "DP1"})
	require.NoError(t, err)
	require.NoError(t, p.CommitPolygon(poly))

	_, err = p.StartTraverse(domain.Point{Number: 1})
	require.NoError(t, err)
	_, err = p.ExtendByBearingDistance(BearingDistance{From: 1, Bearing: 45, Distance: 2, Number: 5})
	require.NoError(t, err)

	fc, err := p.FeatureCollection()
	require.NoError(t, err)

	kinds := map[string]int{}
	for _, f := range fc.Features {
		kinds[f.Properties.MustString("kind")]++
	}
	assert.Equal(t, 5, kinds["point"])
	assert.Equal(t, 1, kinds["polygon"])
	assert.Equal(t, 1, kinds["leg"])

	for _, f := range fc.Features {
		if f.Properties.MustString("kind") != "polygon" {
			continue
		}
		poly, ok := f.Geometry.(orb.Polygon)
		require.True(t, ok)
		require.Len(t, poly, 1)
		assert.True(t, poly[0].Closed())
		assert.Equal(t, "LOT 1\nDP1\nArea: 100.00m2", f.Properties.MustString("label"))
	}

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"FeatureCollection"`)
}
