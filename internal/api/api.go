// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gapmap/internal/export"
	"gapmap/internal/geo"
	"gapmap/internal/heatmap"
	"gapmap/internal/locate"
	"gapmap/internal/metrics"
	"gapmap/internal/places"
	"gapmap/internal/store"
	"gapmap/internal/zone"

	"github.com/google/uuid"
)

const (
	// MaxBodyBytes 请求体上限
	MaxBodyBytes = 8 << 20
	// MaxPlaces 单次分析允许的竞品数上限
	MaxPlaces = 5000
	// NoZonesMessage 无竞品时的提示文案
	NoZonesMessage = "no zones found"
)

var errNotConfigured = errors.New("not configured")

// AnalysisStore 由 *store.Store 实现
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, rec *store.AnalysisRecord) error
	GetAnalysis(ctx context.Context, id uuid.UUID) (*store.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, limit int) ([]store.AnalysisSummary, error)
	IncrStats(ctx context.Context) error
	GetTotals(ctx context.Context) (*store.Totals, error)
}

// PlaceSearcher 由 *places.Manager 实现
type PlaceSearcher interface {
	Search(ctx context.Context, q places.Query) ([]zone.Place, error)
}

// ViewportLocator 由 *locate.Locator 实现
type ViewportLocator interface {
	Viewport(ip string) (*locate.Viewport, error)
}

// BoundaryReloader 由 *revgeo.Dynamic 实现
type BoundaryReloader interface {
	Reload(dir string) error
}

// 文档注释：路由依赖
// 约束：Store/Places/Locator/Redis 可为空（对应接口返回 503 或跳过）；务必不要传入类型化的 nil 指针
type Deps struct {
	Base     string
	Analyzer *zone.Analyzer
	Grid     heatmap.GridConfig
	TopN     int
	Store    AnalysisStore
	Places   PlaceSearcher
	Locator  ViewportLocator
	Redis    bitStore
	Logger   *slog.Logger
	Metrics  http.Handler

	// AdminToken 与 Boundaries 均非空时注册离线边界热加载接口
	AdminToken  string
	Boundaries  BoundaryReloader
	BoundaryDir string

	now func() time.Time
}

type server struct {
	Deps
}

// 构建并返回 API 路由：模式中带 Base 前缀，访问日志可直接按路由模式打标签
func BuildRoutes(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Analyzer == nil {
		d.Analyzer = zone.NewAnalyzer(zone.DefaultConfig(), zone.DefaultGapConfig(), nil, d.Logger)
	}
	if d.TopN <= 0 {
		d.TopN = zone.DefaultTopN
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Handler()
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.Base = strings.TrimRight(d.Base, "/")
	s := &server{Deps: d}
	b := d.Base
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+b+"/analyze", s.handleAnalyze)
	mux.HandleFunc("POST "+b+"/heatmap", s.handleHeatmap)
	mux.HandleFunc("POST "+b+"/search", s.handleSearch)
	mux.HandleFunc("GET "+b+"/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET "+b+"/analyses", s.handleListAnalyses)
	mux.HandleFunc("GET "+b+"/stats", s.handleStats)
	mux.HandleFunc("GET "+b+"/viewport", s.handleViewport)
	mux.Handle("GET "+b+"/metrics", d.Metrics)
	mux.HandleFunc("GET "+b+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.AdminToken != "" && d.Boundaries != nil {
		mux.HandleFunc("POST "+b+"/admin/reload-revgeo", s.handleReloadBoundaries)
	}
	return mux
}

// 文档注释：离线边界数据热加载
// 背景：数据目录更新后无需重启；令牌经 x-admin-token 传入，常量时间比较。
func (s *server) handleReloadBoundaries(w http.ResponseWriter, r *http.Request) {
	t := r.Header.Get("x-admin-token")
	if subtle.ConstantTimeCompare([]byte(t), []byte(s.AdminToken)) != 1 {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := s.Boundaries.Reload(s.BoundaryDir); err != nil {
		s.Logger.Error("revgeo_reload_error", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("reload failed"))
		return
	}
	s.Logger.Info("revgeo_reloaded", "dir", s.BoundaryDir)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Places) > MaxPlaces {
		writeError(w, http.StatusBadRequest, fmt.Errorf("too many places: %d > %d", len(req.Places), MaxPlaces))
		return
	}
	resp, status, err := s.analyze(r, req.Places, req.Bounds, req.ThresholdMeters, req.TopN)
	if err != nil {
		writeError(w, status, err)
		return
	}
	if wantGeoJSON(r) {
		writeJSON(w, http.StatusOK, export.Analysis(&zone.Result{Clusters: resp.Clusters, Gaps: resp.Gaps, Summary: resp.Summary}))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.Places == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("place search %w", errNotConfigured))
		return
	}
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Bounds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > MaxPlaces {
		limit = MaxPlaces
	}
	found, err := s.Places.Search(r.Context(), places.Query{Bounds: req.Bounds, Keyword: req.Keyword, Limit: limit})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, places.ErrNoSources) {
			status = http.StatusServiceUnavailable
		}
		s.Logger.Error("place_search_error", "keyword", req.Keyword, "err", err)
		writeError(w, status, err)
		return
	}
	if found == nil {
		found = []zone.Place{}
	}
	resp, status, err := s.analyze(r, found, req.Bounds, req.ThresholdMeters, req.TopN)
	if err != nil {
		writeError(w, status, err)
		return
	}
	if wantGeoJSON(r) {
		fc := export.Analysis(&zone.Result{Clusters: resp.Clusters, Gaps: resp.Gaps})
		fc.Features = append(fc.Features, export.Places(found).Features...)
		writeJSON(w, http.StatusOK, fc)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Places: found, analyzeResponse: *resp})
}

// analyze：运行分析、记录指标并按需持久化；持久化失败只记日志，不影响返回
func (s *server) analyze(r *http.Request, ps []zone.Place, b geo.Bounds, threshold float64, topN int) (*analyzeResponse, int, error) {
	if topN <= 0 {
		topN = s.TopN
	}
	t0 := time.Now()
	res, err := s.Analyzer.Analyze(r.Context(), ps, b, threshold, topN)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidBounds) {
			return nil, http.StatusBadRequest, err
		}
		return nil, http.StatusInternalServerError, err
	}
	metrics.AnalysesTotal.Inc()
	metrics.AnalysisDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	metrics.ClustersPerAnalysis.Observe(float64(len(res.Clusters)))
	metrics.GapsPerAnalysis.Observe(float64(len(res.Gaps)))

	resp := &analyzeResponse{Clusters: res.Clusters, Gaps: res.Gaps, Summary: res.Summary}
	if resp.Clusters == nil {
		resp.Clusters = []zone.Cluster{}
	}
	if resp.Gaps == nil {
		resp.Gaps = []zone.GapZone{}
	}
	if len(res.Clusters) == 0 {
		resp.Message = NoZonesMessage
	}
	if s.Store != nil {
		if id, err := s.persist(r, res, b, threshold, len(ps)); err != nil {
			s.Logger.Error("analysis_save_error", "err", err)
		} else {
			resp.ID = &id
		}
	}
	return resp, http.StatusOK, nil
}

func (s *server) persist(r *http.Request, res *zone.Result, b geo.Bounds, threshold float64, placeCount int) (uuid.UUID, error) {
	ctx := r.Context()
	body, err := json.Marshal(res)
	if err != nil {
		return uuid.Nil, err
	}
	if threshold <= 0 {
		threshold = s.Analyzer.Clusterer.Config().ThresholdMeters
	}
	rec := &store.AnalysisRecord{
		South: b.SouthWest.Lat, West: b.SouthWest.Lng, North: b.NorthEast.Lat, East: b.NorthEast.Lng,
		ThresholdMeters: threshold,
		PlaceCount:      placeCount,
		ClusterCount:    len(res.Clusters),
		GapCount:        len(res.Gaps),
		Result:          body,
	}
	if err := s.Store.SaveAnalysis(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	visitor := locate.ClientIP(r) + "|" + fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", rec.South, rec.West, rec.North, rec.East)
	first, err := bloomCheckAndSet(ctx, s.Redis, bloomKey(s.now()), bloomPositions([]byte(visitor), bloomBits, bloomHashes), bloomTTL)
	if err != nil {
		s.Logger.Debug("stats_bloom_error", "err", err)
	}
	if first {
		if err := s.Store.IncrStats(ctx); err != nil {
			s.Logger.Error("stats_incr_error", "err", err)
		}
	}
	return rec.ID, nil
}

func (s *server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	var req heatmapRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Places) > MaxPlaces {
		writeError(w, http.StatusBadRequest, fmt.Errorf("too many places: %d > %d", len(req.Places), MaxPlaces))
		return
	}
	mode, err := heatmap.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg := s.Grid
	if req.Grid != nil {
		cfg = *req.Grid
	}
	pts, err := heatmap.BuildGrid(req.Bounds, req.Places, mode, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	metrics.HeatmapBuildsTotal.WithLabelValues(string(mode)).Inc()
	cell := heatmap.CellSize(req.Bounds, cfg)
	if wantGeoJSON(r) {
		writeJSON(w, http.StatusOK, export.Heat(pts, cell))
		return
	}
	writeJSON(w, http.StatusOK, heatmapResponse{Mode: mode, CellSizeMeters: cell, Points: pts})
}

func (s *server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("store %w", errNotConfigured))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid analysis id: %w", err))
		return
	}
	rec, err := s.Store.GetAnalysis(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.Logger.Error("analysis_get_error", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{
		ID:              rec.ID,
		CreatedAt:       rec.CreatedAt,
		Bounds:          geo.NewBounds(rec.South, rec.West, rec.North, rec.East),
		ThresholdMeters: rec.ThresholdMeters,
		PlaceCount:      rec.PlaceCount,
		Result:          json.RawMessage(rec.Result),
	})
}

func (s *server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("store %w", errNotConfigured))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	list, err := s.Store.ListAnalyses(r.Context(), limit)
	if err != nil {
		s.Logger.Error("analysis_list_error", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": list})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("store %w", errNotConfigured))
		return
	}
	t, err := s.Store.GetTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleViewport(w http.ResponseWriter, r *http.Request) {
	if s.Locator == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("geoip %w", errNotConfigured))
		return
	}
	v, err := s.Locator.Viewport(locate.ClientIP(r))
	switch {
	case errors.Is(err, locate.ErrBadIP):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, locate.ErrUnknownIP):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func wantGeoJSON(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "geojson")
}

// decode：请求体限长；失败时已写出 400
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
