package zone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"gapmap/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _ geo.LatLng) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if f.fail[i] {
		return "", errors.New("quota exceeded")
	}
	return fmt.Sprintf("Taman %d", i), nil
}

func viewport(halfMeters float64) geo.Bounds {
	sw := offset(klcc, -halfMeters, -halfMeters)
	ne := offset(klcc, halfMeters, halfMeters)
	return geo.NewBounds(sw.Lat, sw.Lng, ne.Lat, ne.Lng)
}

func TestFindGapsNearestAcrossAntimeridian(t *testing.T) {
	places := []Place{place("east", geo.LatLng{Lat: -16.8, Lng: -179.999})}
	for i := 0; i < 40; i++ {
		places = append(places, place(fmt.Sprintf("w%02d", i), geo.LatLng{Lat: -16.9 + float64(i%5)*0.05, Lng: 170 + float64(i)*0.2}))
	}
	clusters := ClusterPlaces(places, 1000)
	bounds := geo.NewBounds(-16.82, 179.97, -16.78, 179.9999)

	gaps, err := (&GapFinder{}).FindGaps(context.Background(), clusters, bounds, 3)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)
	for _, g := range gaps {
		want := math.MaxFloat64
		for _, p := range places {
			want = math.Min(want, geo.Distance(g.Location, p.Location))
		}
		assert.InDelta(t, want, g.NearestDistanceMeters, 1e-6)
		assert.Less(t, g.NearestDistanceMeters, 5000.0)
	}
}

func TestFindGapsInvariants(t *testing.T) {
	places := []Place{place("a", klcc), place("b", offset(klcc, 1200, 800))}
	clusters := ClusterPlaces(places, 1000)
	geocoder := &fakeGeocoder{}
	f := &GapFinder{Geocoder: geocoder}

	gaps, err := f.FindGaps(context.Background(), clusters, viewport(3000), 5)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)
	assert.LessOrEqual(t, len(gaps), 5)
	assert.Equal(t, len(gaps), geocoder.calls)

	for i, g := range gaps {
		assert.Equal(t, fmt.Sprintf("gap-%d", i), g.ID)
		assert.Equal(t, fmt.Sprintf("Taman %d", i), g.AreaName)
		for _, p := range places {
			assert.GreaterOrEqual(t, geo.Distance(g.Location, p.Location), 300.0)
		}
		for j := i + 1; j < len(gaps); j++ {
			assert.GreaterOrEqual(t, geo.Distance(g.Location, gaps[j].Location), 500.0)
		}
		if i > 0 {
			assert.LessOrEqual(t, g.NearestDistanceMeters, gaps[i-1].NearestDistanceMeters)
		}
		assert.InDelta(t, math.Min(500, 0.4*g.NearestDistanceMeters), g.RadiusMeters, 1e-9)
		assert.Equal(t, clampScore(math.Round(g.NearestDistanceMeters/1000*20)), g.OpportunityScore)
		assert.True(t, viewport(3000).Contains(g.Location))
	}
}

func TestFindGapsGeocoderFallback(t *testing.T) {
	clusters := ClusterPlaces([]Place{place("a", klcc)}, 1000)
	geocoder := &fakeGeocoder{fail: map[int]bool{1: true}}
	f := &GapFinder{Geocoder: geocoder}

	gaps, err := f.FindGaps(context.Background(), clusters, viewport(3000), 3)
	require.NoError(t, err)
	require.Len(t, gaps, 3)
	assert.Equal(t, "Taman 0", gaps[0].AreaName)
	assert.Equal(t, "Opportunity Zone 2", gaps[1].AreaName)
	assert.Equal(t, "Taman 2", gaps[2].AreaName)
}

func TestFindGapsWithoutGeocoder(t *testing.T) {
	clusters := ClusterPlaces([]Place{place("a", klcc)}, 1000)
	gaps, err := (&GapFinder{}).FindGaps(context.Background(), clusters, viewport(3000), 2)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	assert.Equal(t, "Opportunity Zone 1", gaps[0].AreaName)
	assert.Equal(t, "Opportunity Zone 2", gaps[1].AreaName)
}

func TestFindGapsCancelledContext(t *testing.T) {
	clusters := ClusterPlaces([]Place{place("a", klcc)}, 1000)
	geocoder := &fakeGeocoder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gaps, err := (&GapFinder{Geocoder: geocoder}).FindGaps(ctx, clusters, viewport(3000), 2)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	assert.Equal(t, 0, geocoder.calls)
	assert.Equal(t, "Opportunity Zone 1", gaps[0].AreaName)
}

func TestFindGapsEdgeCases(t *testing.T) {
	f := &GapFinder{}
	ctx := context.Background()

	gaps, err := f.FindGaps(ctx, nil, viewport(3000), 5)
	require.NoError(t, err)
	assert.NotNil(t, gaps)
	assert.Empty(t, gaps)

	clusters := ClusterPlaces([]Place{place("a", klcc)}, 1000)
	gaps, err = f.FindGaps(ctx, clusters, viewport(3000), 0)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	// 视口整体在竞品 300m 以内，没有候选
	gaps, err = f.FindGaps(ctx, clusters, viewport(150), 5)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	_, err = f.FindGaps(ctx, clusters, geo.NewBounds(3.2, 101.7, 3.1, 101.8), 5)
	assert.ErrorIs(t, err, geo.ErrInvalidBounds)
}

func TestFindGapsFarCorner(t *testing.T) {
	// 竞品位于西南角附近，最佳缺口应靠近东北角
	sw := offset(klcc, -2000, -2000)
	clusters := ClusterPlaces([]Place{place("a", sw)}, 1000)
	gaps, err := (&GapFinder{}).FindGaps(context.Background(), clusters, viewport(2000), 1)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	ne := offset(klcc, 2000, 2000)
	assert.Less(t, geo.Distance(gaps[0].Location, ne), 400.0)
	assert.Equal(t, "Shop a", gaps[0].NearestPlace)
	assert.Equal(t, 100, gaps[0].OpportunityScore)
}
