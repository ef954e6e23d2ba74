package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gapmap/internal/geo"
	"gapmap/internal/locate"
	"gapmap/internal/places"
	"gapmap/internal/store"
	"gapmap/internal/zone"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	klcc     = geo.LatLng{Lat: 3.1579, Lng: 101.7123}
	viewport = geo.NewBounds(3.13, 101.68, 3.19, 101.74)
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []store.AnalysisRecord
	incrs   int
	saveErr error
}

func (f *fakeStore) SaveAnalysis(_ context.Context, rec *store.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f.saved = append(f.saved, *rec)
	return nil
}

func (f *fakeStore) GetAnalysis(_ context.Context, id uuid.UUID) (*store.AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.saved {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListAnalyses(_ context.Context, limit int) ([]store.AnalysisSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.AnalysisSummary{}
	for _, r := range f.saved {
		out = append(out, store.AnalysisSummary{ID: r.ID, PlaceCount: r.PlaceCount, ClusterCount: r.ClusterCount})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) IncrStats(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrs++
	return nil
}

func (f *fakeStore) GetTotals(context.Context) (*store.Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &store.Totals{Total: int64(f.incrs), Today: int64(f.incrs)}, nil
}

type fakeSearcher struct {
	places []zone.Place
	err    error
	got    places.Query
}

func (f *fakeSearcher) Search(_ context.Context, q places.Query) ([]zone.Place, error) {
	f.got = q
	return f.places, f.err
}

type fakeLocator struct{}

func (fakeLocator) Viewport(ip string) (*locate.Viewport, error) {
	switch ip {
	case "175.139.1.1":
		return &locate.Viewport{IP: ip, City: "Kuala Lumpur", Center: klcc, Bounds: geo.BoundsAround(klcc, 3000)}, nil
	case "bogus":
		return nil, locate.ErrBadIP
	}
	return nil, locate.ErrUnknownIP
}

// fakeBits 内存位图
type fakeBits struct {
	bits map[string]map[int64]bool
}

func (f *fakeBits) GetBit(_ context.Context, key string, off int64) *redis.IntCmd {
	v := int64(0)
	if f.bits[key][off] {
		v = 1
	}
	return redis.NewIntResult(v, nil)
}

func (f *fakeBits) SetBit(_ context.Context, key string, off int64, _ int) *redis.IntCmd {
	if f.bits == nil {
		f.bits = map[string]map[int64]bool{}
	}
	if f.bits[key] == nil {
		f.bits[key] = map[int64]bool{}
	}
	f.bits[key][off] = true
	return redis.NewIntResult(0, nil)
}

func (f *fakeBits) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func offset(base geo.LatLng, east, north float64) geo.LatLng {
	return geo.LatLng{
		Lat: base.Lat + north/geo.EarthRadiusMeters*180/3.141592653589793,
		Lng: base.Lng + geo.MaxLngDelta(base.Lat, east),
	}
}

func samplePlaces() []zone.Place {
	ps := []zone.Place{}
	for i, d := range []float64{0, 60, 120, 180} {
		ps = append(ps, zone.Place{
			ID:          "p" + string(rune('a'+i)),
			Name:        "Kopi " + string(rune('A'+i)),
			Address:     "Jalan Ampang, 50450 Kuala Lumpur, Malaysia",
			Location:    offset(klcc, d, 0),
			Rating:      zone.Ptr(4.2),
			ReviewCount: zone.Ptr(100 * (i + 1)),
		})
	}
	return ps
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = "175.139.1.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzePersistsAndCountsOnce(t *testing.T) {
	st := &fakeStore{}
	h := BuildRoutes(Deps{Base: "/api", Store: st, Redis: &fakeBits{}})
	body := analyzeRequest{Places: samplePlaces(), Bounds: viewport, TopN: 2}

	rec := do(t, h, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clusters, 1)
	assert.Equal(t, zone.IntensityHigh, resp.Clusters[0].Intensity)
	assert.Equal(t, "Jalan Ampang", resp.Clusters[0].AreaName)
	assert.LessOrEqual(t, len(resp.Gaps), 2)
	assert.Empty(t, resp.Message)
	require.NotNil(t, resp.ID)
	require.Len(t, st.saved, 1)
	assert.Equal(t, *resp.ID, st.saved[0].ID)
	assert.Equal(t, 4, st.saved[0].PlaceCount)
	assert.Equal(t, 1000.0, st.saved[0].ThresholdMeters)

	rec = do(t, h, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, st.saved, 2)
	assert.Equal(t, 1, st.incrs, "same visitor and viewport counted once")

	rec = do(t, h, http.MethodGet, "/api/stats", nil)
	assert.JSONEq(t, `{"total":1,"today":1}`, rec.Body.String())
}

func TestAnalyzeEmptyAndInvalid(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api/"})

	rec := do(t, h, http.MethodPost, "/api/analyze", analyzeRequest{Places: []zone.Place{}, Bounds: viewport})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Clusters)
	assert.NotNil(t, resp.Clusters)
	assert.Equal(t, NoZonesMessage, resp.Message)
	assert.Nil(t, resp.ID)
	assert.NotContains(t, rec.Body.String(), `"clusters":null`)

	rec = do(t, h, http.MethodPost, "/api/analyze", analyzeRequest{Bounds: geo.NewBounds(3.2, 101.6, 3.1, 101.7)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid bounds")

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(""))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.JSONEq(t, `{"error":"invalid request body: empty request body"}`, w.Body.String())

	rec = do(t, h, http.MethodGet, "/api/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyzeSaveFailureStillAnswers(t *testing.T) {
	st := &fakeStore{saveErr: errors.New("db down")}
	h := BuildRoutes(Deps{Base: "/api", Store: st})
	rec := do(t, h, http.MethodPost, "/api/analyze", analyzeRequest{Places: samplePlaces(), Bounds: viewport})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.ID)
	assert.Len(t, resp.Clusters, 1)
	assert.Zero(t, st.incrs)
}

func TestAnalyzeGeoJSON(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api"})
	rec := do(t, h, http.MethodPost, "/api/analyze?format=geojson", analyzeRequest{Places: samplePlaces(), Bounds: viewport, TopN: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.GreaterOrEqual(t, len(fc.Features), 2)
	assert.Equal(t, "cluster", fc.Features[0].Properties["kind"])
	assert.Equal(t, "cluster_area", fc.Features[1].Properties["kind"])
}

func TestHeatmap(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api"})
	rec := do(t, h, http.MethodPost, "/api/heatmap", map[string]any{
		"places": samplePlaces(),
		"bounds": viewport,
		"mode":   "opportunity",
		"grid":   map[string]any{"cellsPerSide": 4},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp heatmapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "opportunity", string(resp.Mode))
	assert.Len(t, resp.Points, 16)
	assert.GreaterOrEqual(t, resp.CellSizeMeters, 150.0)
	assert.LessOrEqual(t, resp.CellSizeMeters, 800.0)

	rec = do(t, h, http.MethodPost, "/api/heatmap", map[string]any{"bounds": viewport, "mode": "loudness"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/heatmap", map[string]any{"bounds": viewport})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"points":[]`)
}

func TestHeatmapRejectsOversizedGrid(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api"})
	rec := do(t, h, http.MethodPost, "/api/heatmap", map[string]any{
		"places": samplePlaces(),
		"bounds": viewport,
		"grid":   map[string]any{"cellsPerSide": 1500},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "grid too large")
}

func TestSearch(t *testing.T) {
	fs := &fakeSearcher{places: samplePlaces()}
	h := BuildRoutes(Deps{Base: "/api", Places: fs})
	rec := do(t, h, http.MethodPost, "/api/search", searchRequest{Bounds: viewport, Keyword: "cafe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Places, 4)
	assert.Len(t, resp.Clusters, 1)
	assert.Equal(t, "cafe", fs.got.Keyword)
	assert.Equal(t, MaxPlaces, fs.got.Limit)

	fs.err = places.ErrNoSources
	rec = do(t, h, http.MethodPost, "/api/search", searchRequest{Bounds: viewport})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fs.err = errors.New("quota")
	rec = do(t, h, http.MethodPost, "/api/search", searchRequest{Bounds: viewport})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	h = BuildRoutes(Deps{Base: "/api"})
	rec = do(t, h, http.MethodPost, "/api/search", searchRequest{Bounds: viewport})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalysesLookup(t *testing.T) {
	st := &fakeStore{}
	h := BuildRoutes(Deps{Base: "/api", Store: st})
	rec := do(t, h, http.MethodPost, "/api/analyze", analyzeRequest{Places: samplePlaces(), Bounds: viewport})
	require.Equal(t, http.StatusOK, rec.Code)
	id := st.saved[0].ID

	rec = do(t, h, http.MethodGet, "/api/analyses/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got analysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, viewport, got.Bounds)
	assert.Contains(t, string(got.Result), `"clusters"`)

	rec = do(t, h, http.MethodGet, "/api/analyses/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/analyses/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/analyses?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())
	rec = do(t, h, http.MethodGet, "/api/analyses?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreNotConfigured(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api"})
	for _, path := range []string{"/api/analyses", "/api/analyses/" + uuid.NewString(), "/api/stats", "/api/viewport"} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "not configured")
	}
}

func TestViewport(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api", Locator: fakeLocator{}})
	rec := do(t, h, http.MethodGet, "/api/viewport", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Kuala Lumpur")

	rec = do(t, h, http.MethodGet, "/api/viewport?ip=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/viewport?ip=10.0.0.1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api"})
	rec := do(t, h, http.MethodGet, "/api/healthz", nil)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gapmap_")
}

func TestBloom(t *testing.T) {
	pos := bloomPositions([]byte("1.2.3.4|viewport"), 1024, 4)
	require.Len(t, pos, 4)
	for _, p := range pos {
		assert.Less(t, p, int64(1024))
	}
	assert.Equal(t, pos, bloomPositions([]byte("1.2.3.4|viewport"), 1024, 4))

	ctx := context.Background()
	first, err := bloomCheckAndSet(ctx, nil, "k", pos, time.Hour)
	assert.NoError(t, err)
	assert.True(t, first)

	bits := &fakeBits{}
	first, _ = bloomCheckAndSet(ctx, bits, "k", pos, time.Hour)
	assert.True(t, first)
	first, _ = bloomCheckAndSet(ctx, bits, "k", pos, time.Hour)
	assert.False(t, first)

	assert.Equal(t, "gapmap:bloom:stats:20240501", bloomKey(time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)))
}

type fakeReloader struct {
	dirs []string
	err  error
}

func (f *fakeReloader) Reload(dir string) error {
	f.dirs = append(f.dirs, dir)
	return f.err
}

func TestReloadBoundaries(t *testing.T) {
	rl := &fakeReloader{}
	h := BuildRoutes(Deps{Base: "/api/", AdminToken: "s3cret", Boundaries: rl, BoundaryDir: "data/revgeo"})

	post := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/reload-revgeo", nil)
		if token != "" {
			req.Header.Set("x-admin-token", token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusForbidden, post(""))
	assert.Equal(t, http.StatusForbidden, post("wrong"))
	assert.Empty(t, rl.dirs)

	assert.Equal(t, http.StatusNoContent, post("s3cret"))
	assert.Equal(t, []string{"data/revgeo"}, rl.dirs)

	rl.err = errors.New("bad geojson")
	assert.Equal(t, http.StatusInternalServerError, post("s3cret"))
}

func TestReloadBoundariesDisabledWithoutToken(t *testing.T) {
	h := BuildRoutes(Deps{Base: "/api", Boundaries: &fakeReloader{}})
	rec := do(t, h, http.MethodPost, "/api/admin/reload-revgeo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
