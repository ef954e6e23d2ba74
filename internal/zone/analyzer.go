package zone

import (
	"context"
	"log/slog"
	"time"

	"gapmap/internal/geo"
)

// DefaultTopN 默认返回的缺口数量
const DefaultTopN = 5

// Result 一次分析的完整输出
type Result struct {
	Clusters []Cluster     `json:"clusters"`
	Gaps     []GapZone     `json:"gaps"`
	Summary  MarketSummary `json:"summary"`
}

// 文档注释：分析流水线（聚类 → 指标 → 缺口 → 概览）
// 约束：无状态，可并发调用；仅缺口命名环节访问外部服务
type Analyzer struct {
	Clusterer *Clusterer
	Gaps      *GapFinder
	Logger    *slog.Logger
}

func NewAnalyzer(cfg Config, gapCfg GapConfig, geocoder ReverseGeocoder, l *slog.Logger) *Analyzer {
	return &Analyzer{
		Clusterer: NewClusterer(cfg),
		Gaps:      &GapFinder{Geocoder: geocoder, Config: gapCfg, Logger: l},
		Logger:    l,
	}
}

// Analyze：thresholdMeters<=0 时使用配置阈值；topN<=0 时使用 DefaultTopN
func (a *Analyzer) Analyze(ctx context.Context, places []Place, bounds geo.Bounds, thresholdMeters float64, topN int) (*Result, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	t0 := time.Now()
	clusterer := a.Clusterer
	if thresholdMeters > 0 && thresholdMeters != clusterer.cfg.ThresholdMeters {
		cfg := clusterer.cfg
		cfg.ThresholdMeters = thresholdMeters
		clusterer = NewClusterer(cfg)
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	clusters := clusterer.Cluster(places)
	gaps, err := a.Gaps.FindGaps(ctx, clusters, bounds, topN)
	if err != nil {
		return nil, err
	}
	res := &Result{Clusters: clusters, Gaps: gaps, Summary: Summarize(clusters, gaps)}
	if a.Logger != nil {
		a.Logger.Debug("analysis_done",
			"places", len(places),
			"clusters", len(clusters),
			"gaps", len(gaps),
			"duration_ms", time.Since(t0).Milliseconds(),
		)
	}
	return res, nil
}
