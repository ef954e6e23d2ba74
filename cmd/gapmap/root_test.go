package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gapmap/internal/config"
	"gapmap/internal/geo"
	"gapmap/internal/places"
	"gapmap/internal/zone"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placesJSON = `[
 {"id":"a","name":"Kopi A","address":"Jalan Ampang, 50450 Kuala Lumpur, Malaysia","location":{"lat":3.1579,"lng":101.7123},"rating":4.5,"reviewCount":300},
 {"id":"b","name":"Kopi B","address":"Jalan Ampang, 50450 Kuala Lumpur, Malaysia","location":{"lat":3.1582,"lng":101.7127},"rating":4.1,"reviewCount":80},
 {"id":"c","name":"Kopi C","address":"Bangsar, 59100 Kuala Lumpur, Malaysia","location":{"lat":3.1300,"lng":101.6700}}
]`

func isolate(t *testing.T) {
	for _, k := range []string{"GOOGLE_MAPS_API_KEY", "REVGEO_DATA_DIR", "REDIS_HOST", "REDIS_ENABLED", "CLUSTER_THRESHOLD_M", "GAP_TOP_N", "AREA_REGION_NAMES", "AREA_COUNTRY_WORDS"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "places.json")
	require.NoError(t, os.WriteFile(file, []byte(placesJSON), 0o644))

	out, err := run(t, "", "analyze", "--places", file, "--bounds", "3.12,101.66,3.17,101.72", "--top", "2")
	require.NoError(t, err)
	var res zone.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Clusters, 2)
	assert.Equal(t, 2, res.Clusters[0].Count)
	assert.Equal(t, "Jalan Ampang", res.Clusters[0].AreaName)
	assert.LessOrEqual(t, len(res.Gaps), 2)
	assert.Equal(t, 3, res.Summary.TotalPlaces)

	out, err = run(t, placesJSON, "analyze", "--bounds", "3.12,101.66,3.17,101.72", "--geojson")
	require.NoError(t, err)
	assert.Contains(t, out, `"FeatureCollection"`)
}

func TestAnalyzeCommandErrors(t *testing.T) {
	isolate(t)
	_, err := run(t, placesJSON, "analyze")
	assert.ErrorContains(t, err, `required flag(s) "bounds" not set`)

	_, err = run(t, placesJSON, "analyze", "--bounds", "3.17,101.66,3.12,101.72")
	assert.ErrorIs(t, err, geo.ErrInvalidBounds)

	_, err = run(t, "{not json", "analyze", "--bounds", "3.12,101.66,3.17,101.72")
	assert.ErrorContains(t, err, "read places")
}

func TestHeatmapCommand(t *testing.T) {
	isolate(t)
	out, err := run(t, placesJSON, "heatmap", "--bounds", "3.12,101.66,3.17,101.72", "--mode", "opportunity", "--cells", "5")
	require.NoError(t, err)
	var res struct {
		Mode   string  `json:"mode"`
		Cell   float64 `json:"cellSizeMeters"`
		Points []struct {
			Weight float64 `json:"weight"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "opportunity", res.Mode)
	assert.Len(t, res.Points, 25)
	assert.GreaterOrEqual(t, res.Cell, 150.0)

	_, err = run(t, placesJSON, "heatmap", "--bounds", "3.12,101.66,3.17,101.72", "--mode", "noise")
	assert.ErrorContains(t, err, "unknown heatmap mode")
}

type staticSource struct{ ps []zone.Place }

func (s staticSource) Name() string                    { return "static" }
func (s staticSource) Heartbeat(context.Context) error { return nil }
func (s staticSource) Search(context.Context, places.Query) ([]zone.Place, error) {
	return s.ps, nil
}

func TestRunFetch(t *testing.T) {
	m := places.NewManager(nil)
	m.Register(staticSource{ps: []zone.Place{{Name: "Kopi", Location: geo.LatLng{Lat: 3.15, Lng: 101.70}}}})

	var out bytes.Buffer
	o := &fetchOptions{bounds: "3.12,101.66,3.17,101.72", keyword: "cafe"}
	require.NoError(t, runFetch(context.Background(), m, o, &out))
	assert.Contains(t, out.String(), `"name": "Kopi"`)

	out.Reset()
	o.source = "static"
	require.NoError(t, runFetch(context.Background(), m, o, &out))
	assert.Contains(t, out.String(), "Kopi")

	o.source = "yelp"
	assert.ErrorContains(t, runFetch(context.Background(), m, o, &out), `unknown source "yelp"`)
}

func TestOpenRedisClose(t *testing.T) {
	rc, closeRedis := openRedis(&env{cfg: &config.Config{}})
	assert.Nil(t, rc)
	closeRedis()

	rc, closeRedis = openRedis(&env{cfg: &config.Config{RedisEnabled: true, Redis: config.Redis{Addr: "127.0.0.1:0"}}})
	require.NotNil(t, rc)
	closeRedis()
	assert.ErrorIs(t, rc.Ping(context.Background()).Err(), redis.ErrClosed)
}
