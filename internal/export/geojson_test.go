package export

import (
	"encoding/json"
	"testing"

	"gapmap/internal/geo"
	"gapmap/internal/heatmap"
	"gapmap/internal/zone"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var klcc = geo.LatLng{Lat: 3.1579, Lng: 101.7123}

func TestCircle(t *testing.T) {
	poly := Circle(klcc, 500, 16)
	require.Len(t, poly, 1)
	ring := poly[0]
	require.Len(t, ring, 17)
	assert.True(t, ring.Closed())
	assert.True(t, planar.PolygonContains(poly, orb.Point{klcc.Lng, klcc.Lat}))
	for _, p := range ring[:16] {
		d := geo.Distance(klcc, geo.LatLng{Lat: p[1], Lng: p[0]})
		assert.InDelta(t, 500, d, 5)
	}
	assert.Len(t, Circle(klcc, 500, 0)[0], CircleSegments+1)
}

func TestAnalysis(t *testing.T) {
	res := &zone.Result{
		Clusters: []zone.Cluster{{ID: "cluster-1", Center: klcc, AreaName: "KLCC", Count: 4, Intensity: zone.IntensityHigh, RadiusMeters: 400}},
		Gaps:     []zone.GapZone{{ID: "gap-1", Location: geo.LatLng{Lat: 3.17, Lng: 101.70}, AreaName: "Chow Kit", RadiusMeters: 500, NearestDistanceMeters: 1800, OpportunityScore: 36}},
	}
	fc := Analysis(res)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, KindCluster, fc.Features[0].Properties["kind"])
	assert.Equal(t, orb.Point{101.7123, 3.1579}, fc.Features[0].Geometry)
	assert.Equal(t, "high", fc.Features[0].Properties["intensity"])
	assert.Equal(t, KindClusterArea, fc.Features[1].Properties["kind"])
	assert.IsType(t, orb.Polygon{}, fc.Features[1].Geometry)
	assert.Equal(t, 36, fc.Features[2].Properties["opportunityScore"])
	_, hasNearest := fc.Features[2].Properties["nearestPlace"]
	assert.False(t, hasNearest)

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	back, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)
	assert.Equal(t, "gap-1", back.Features[2].ID)

	assert.Empty(t, Analysis(nil).Features)
}

func TestHeatAndPlaces(t *testing.T) {
	fc := Heat([]heatmap.WeightedPoint{{Location: klcc, Weight: 100}, {Location: geo.LatLng{Lat: 3.16, Lng: 101.71}, Weight: 0}}, 200)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 100.0, fc.Features[0].Properties["weight"])
	assert.Equal(t, 200.0, fc.Features[1].Properties["cellSize"])

	pfc := Places([]zone.Place{{ID: "p1", Name: "Kopi", Location: klcc, Rating: zone.Ptr(4.5)}, {Name: "Teh"}})
	require.Len(t, pfc.Features, 2)
	assert.Equal(t, 4.5, pfc.Features[0].Properties["rating"])
	assert.Nil(t, pfc.Features[1].ID)
	_, ok := pfc.Features[1].Properties["rating"]
	assert.False(t, ok)
}
