package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_http_requests_total",
		Help: "Total HTTP requests by route and status",
	}, []string{"route", "status"})
	HTTPDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gapmap_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"route"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gapmap_rate_limited_total",
		Help: "Total requests rejected by the rate limiter",
	})
	AnalysesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gapmap_analyses_total",
		Help: "Total zone analyses",
	})
	AnalysisDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gapmap_analysis_duration_ms",
		Help:    "Zone analysis duration in milliseconds",
		Buckets: msBuckets,
	})
	ClustersPerAnalysis = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gapmap_clusters_per_analysis",
		Help:    "Number of clusters per analysis",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
	GapsPerAnalysis = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gapmap_gaps_per_analysis",
		Help:    "Number of gap zones per analysis",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
	})
	HeatmapBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_heatmap_builds_total",
		Help: "Total heatmap grids built by mode",
	}, []string{"mode"})
	GeocodeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_geocode_requests_total",
		Help: "Total reverse geocode calls by geocoder",
	}, []string{"geocoder"})
	GeocodeFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_geocode_fail_total",
		Help: "Total reverse geocode failures (error or empty name)",
	}, []string{"geocoder"})
	GeocodeDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gapmap_geocode_duration_ms",
		Help:    "Reverse geocode duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"geocoder"})
	GeocodeCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gapmap_geocode_cache_hits_total",
		Help: "Total redis geocode cache hits",
	})
	GeocodeCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gapmap_geocode_cache_misses_total",
		Help: "Total redis geocode cache misses",
	})
	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_source_requests_total",
		Help: "Total place source searches",
	}, []string{"source"})
	SourceSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_source_success_total",
		Help: "Total place source searches returning places",
	}, []string{"source"})
	SourceFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_source_fail_total",
		Help: "Total place source search failures",
	}, []string{"source"})
	SourceDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gapmap_source_duration_ms",
		Help:    "Place source search duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"source"})
	SourceHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gapmap_source_heartbeat_total",
		Help: "Place source heartbeat count by status",
	}, []string{"source", "status"})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPDurationMs)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(AnalysesTotal)
	prometheus.MustRegister(AnalysisDurationMs)
	prometheus.MustRegister(ClustersPerAnalysis)
	prometheus.MustRegister(GapsPerAnalysis)
	prometheus.MustRegister(HeatmapBuildsTotal)
	prometheus.MustRegister(GeocodeRequestsTotal)
	prometheus.MustRegister(GeocodeFailTotal)
	prometheus.MustRegister(GeocodeDurationMs)
	prometheus.MustRegister(GeocodeCacheHitsTotal)
	prometheus.MustRegister(GeocodeCacheMissesTotal)
	prometheus.MustRegister(SourceRequestsTotal)
	prometheus.MustRegister(SourceSuccessTotal)
	prometheus.MustRegister(SourceFailTotal)
	prometheus.MustRegister(SourceDurationMs)
	prometheus.MustRegister(SourceHeartbeatTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
