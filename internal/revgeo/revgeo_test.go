package revgeo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gapmap/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 外层 Kuala Lumpur 大方块内嵌 Bangsar 小方块（带洞），外加一个 Cheras 质心点
const areasGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"city": "Kuala Lumpur"},
     "geometry": {"type": "Polygon", "coordinates": [[[101.60,3.05],[101.80,3.05],[101.80,3.25],[101.60,3.25],[101.60,3.05]]]}},
    {"type": "Feature", "properties": {"name": "Bangsar", "city": "Kuala Lumpur"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[
        [[101.66,3.12],[101.68,3.12],[101.68,3.14],[101.66,3.14],[101.66,3.12]],
        [[101.669,3.129],[101.671,3.129],[101.671,3.131],[101.669,3.131],[101.669,3.129]]
     ]]}},
    {"type": "Feature", "properties": {"name": "Cheras"},
     "geometry": {"type": "Point", "coordinates": [101.75, 3.00]}}
  ]
}`

func writeData(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kl.geojson"), []byte(areasGeoJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CentroidsFile), []byte(`[{"name":"Putrajaya","lat":2.9264,"lng":101.6964}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))
	return dir
}

func TestLoadSnapshot(t *testing.T) {
	snap, err := LoadSnapshot(writeData(t))
	require.NoError(t, err)
	assert.Len(t, snap.Areas, 2)
	require.Len(t, snap.Centroids, 2)
	assert.Equal(t, "Putrajaya", snap.Centroids[0].Name)
	assert.Equal(t, "Cheras", snap.Centroids[1].Name)
	assert.Equal(t, 3.00, snap.Centroids[1].Lat)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "x.geojson"), []byte("{"), 0o644))
	_, err = LoadSnapshot(bad)
	assert.ErrorContains(t, err, "x.geojson")
}

func TestGeocoderLookup(t *testing.T) {
	snap, err := LoadSnapshot(writeData(t))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		p    geo.LatLng
		want string
		err  error
	}{
		{"nested_finest", geo.LatLng{Lat: 3.125, Lng: 101.665}, "Bangsar", nil},
		{"hole_falls_to_outer", geo.LatLng{Lat: 3.130, Lng: 101.670}, "Kuala Lumpur", nil},
		{"outer_only", geo.LatLng{Lat: 3.20, Lng: 101.75}, "Kuala Lumpur", nil},
		{"centroid_fallback", geo.LatLng{Lat: 3.01, Lng: 101.75}, "Cheras", nil},
		{"too_far", geo.LatLng{Lat: 5.40, Lng: 100.30}, "", ErrNoArea},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 每例新建实例，避免相邻坐标命中同一 geohash 缓存
			g := NewGeocoder(snap, Options{MaxRadiusMeters: 3000})
			name, err := g.ReverseGeocode(ctx, tt.p)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestGeocoderCancelled(t *testing.T) {
	g := NewGeocoder(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.ReverseGeocode(ctx, geo.LatLng{Lat: 3.1, Lng: 101.7})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDynamicReload(t *testing.T) {
	d := NewDynamic(Options{})
	p := geo.LatLng{Lat: 3.125, Lng: 101.665}
	_, err := d.ReverseGeocode(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoArea)

	require.NoError(t, d.Reload(writeData(t)))
	name, err := d.ReverseGeocode(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Bangsar", name)

	// 重新加载失败保留旧快照
	assert.Error(t, d.Reload(filepath.Join(t.TempDir(), "missing")))
	name, err = d.ReverseGeocode(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Bangsar", name)
}

func TestLRU(t *testing.T) {
	c := NewLRU(2, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set("a", "A")
	c.Set("b", "B")
	_, _ = c.Get("a")
	c.Set("c", "C")
	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	assert.Equal(t, 2, c.Len())

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired")
	assert.Equal(t, 1, c.Len())
}
