package zone

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"gapmap/internal/geo"
)

// ReverseGeocoder：坐标到人类可读片区名（外部协作者）
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error)
}

// GapZone 市场缺口候选点
type GapZone struct {
	ID                    string     `json:"id"`
	Location              geo.LatLng `json:"location"`
	NearestDistanceMeters float64    `json:"distanceToNearest"`
	NearestPlace          string     `json:"nearestPlace,omitempty"`
	RadiusMeters          float64    `json:"radius"`
	AreaName              string     `json:"areaName"`
	OpportunityScore      int        `json:"opportunityScore"`
}

// GapConfig 网格搜索参数；零值字段回落到默认值
type GapConfig struct {
	GridSize            int
	MinDistanceMeters   float64
	MinSeparationMeters float64
	MaxRadiusMeters     float64
	RadiusFactor        float64
	ScorePerKm          float64
}

func DefaultGapConfig() GapConfig {
	return GapConfig{
		GridSize:            30,
		MinDistanceMeters:   300,
		MinSeparationMeters: 500,
		MaxRadiusMeters:     500,
		RadiusFactor:        0.4,
		ScorePerKm:          20,
	}
}

func (c GapConfig) withDefaults() GapConfig {
	d := DefaultGapConfig()
	if c.GridSize < 2 {
		c.GridSize = d.GridSize
	}
	if c.MinDistanceMeters <= 0 {
		c.MinDistanceMeters = d.MinDistanceMeters
	}
	if c.MinSeparationMeters <= 0 {
		c.MinSeparationMeters = d.MinSeparationMeters
	}
	if c.MaxRadiusMeters <= 0 {
		c.MaxRadiusMeters = d.MaxRadiusMeters
	}
	if c.RadiusFactor <= 0 {
		c.RadiusFactor = d.RadiusFactor
	}
	if c.ScorePerKm <= 0 {
		c.ScorePerKm = d.ScorePerKm
	}
	return c
}

// GapFinder：Geocoder 与 Logger 可为空
type GapFinder struct {
	Geocoder ReverseGeocoder
	Config   GapConfig
	Logger   *slog.Logger
}

type gapCandidate struct {
	loc     geo.LatLng
	dist    float64
	nearest string
}

// 文档注释：网格搜索市场缺口
// 背景：在视口内取 GridSize×GridSize 网格的内部点（不含边界行列），求每点到最近竞品的距离；距离越远机会越大。
// 约束：
// - 最近距离小于 MinDistanceMeters 的点丢弃；
// - 按距离降序贪心选取，已选点两两间距不小于 MinSeparationMeters，至多 topN 个；
// - 逐个顺序反地理编码，失败、为空或上下文已取消时回落到 "Opportunity Zone {序号}"，不影响其他候选；
// - 仅在视口非法时返回错误；无竞品或 topN<=0 返回空切片。
func (f *GapFinder) FindGaps(ctx context.Context, clusters []Cluster, bounds geo.Bounds, topN int) ([]GapZone, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	out := make([]GapZone, 0)
	var places []Place
	for _, c := range clusters {
		places = append(places, c.Places...)
	}
	if len(places) == 0 || topN <= 0 {
		return out, nil
	}
	cfg := f.Config.withDefaults()
	selected := selectGaps(scanGrid(places, bounds, cfg), cfg.MinSeparationMeters, topN)
	for i, c := range selected {
		out = append(out, GapZone{
			ID:                    fmt.Sprintf("gap-%d", i),
			Location:              c.loc,
			NearestDistanceMeters: c.dist,
			NearestPlace:          c.nearest,
			RadiusMeters:          math.Min(cfg.MaxRadiusMeters, cfg.RadiusFactor*c.dist),
			AreaName:              f.areaName(ctx, i, c.loc),
			OpportunityScore:      clampScore(math.Round(c.dist / 1000 * cfg.ScorePerKm)),
		})
	}
	return out, nil
}

func scanGrid(places []Place, bounds geo.Bounds, cfg GapConfig) []gapCandidate {
	ix := geo.NewIndex(locations(places))
	n := cfg.GridSize
	cands := make([]gapCandidate, 0, (n-1)*(n-1))
	for i := 1; i < n; i++ {
		for j := 1; j < n; j++ {
			p := bounds.At(float64(i)/float64(n), float64(j)/float64(n))
			idx, d, ok := ix.Nearest(p)
			if !ok || d < cfg.MinDistanceMeters {
				continue
			}
			cands = append(cands, gapCandidate{loc: p, dist: d, nearest: places[idx].Name})
		}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist > cands[b].dist })
	return cands
}

func selectGaps(cands []gapCandidate, minSep float64, topN int) []gapCandidate {
	var sel []gapCandidate
	for _, c := range cands {
		if len(sel) >= topN {
			break
		}
		ok := true
		for _, s := range sel {
			if geo.Distance(c.loc, s.loc) < minSep {
				ok = false
				break
			}
		}
		if ok {
			sel = append(sel, c)
		}
	}
	return sel
}

func (f *GapFinder) areaName(ctx context.Context, i int, p geo.LatLng) string {
	fallback := fmt.Sprintf("Opportunity Zone %d", i+1)
	if f.Geocoder == nil || ctx.Err() != nil {
		return fallback
	}
	name, err := f.Geocoder.ReverseGeocode(ctx, p)
	if err != nil {
		if f.Logger != nil {
			f.Logger.Debug("gap_geocode_fail", "lat", p.Lat, "lng", p.Lng, "err", err)
		}
		return fallback
	}
	if name = strings.TrimSpace(name); name == "" {
		return fallback
	}
	return name
}
