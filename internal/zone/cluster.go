package zone

import (
	"fmt"
	"math"
	"sort"

	"gapmap/internal/geo"

	"github.com/dhconnelly/rtreego"
)

// Intensity 竞争强度等级
type Intensity string

const (
	IntensityHigh     Intensity = "high"
	IntensityModerate Intensity = "moderate"
	IntensityLow      Intensity = "low"
)

// 文档注释：竞品簇（每次聚类重新计算，ID 仅为本次结果内的序号）
type Cluster struct {
	ID           string     `json:"id"`
	Places       []Place    `json:"places"`
	Center       geo.LatLng `json:"center"`
	AreaName     string     `json:"areaName"`
	Count        int        `json:"count"`
	Intensity    Intensity  `json:"intensity"`
	RadiusMeters float64    `json:"radius"`
	Metrics
}

// Classify 按成员数分级
func Classify(count int, cfg Config) Intensity {
	cfg = cfg.withDefaults()
	switch {
	case count >= cfg.HighIntensityMin:
		return IntensityHigh
	case count >= cfg.ModerateIntensityMin:
		return IntensityModerate
	default:
		return IntensityLow
	}
}

type Clusterer struct {
	cfg Config
}

func NewClusterer(cfg Config) *Clusterer {
	return &Clusterer{cfg: cfg.withDefaults()}
}

func (c *Clusterer) Config() Config { return c.cfg }

// ClusterPlaces 使用默认参数与给定阈值聚类
func ClusterPlaces(places []Place, thresholdMeters float64) []Cluster {
	cfg := DefaultConfig()
	cfg.ThresholdMeters = thresholdMeters
	return NewClusterer(cfg).Cluster(places)
}

// 文档注释：距离阈值连通分量聚类（单链接）
// 背景：两点距离不超过阈值即视为相连，广度优先泛洪得到连通分量；链式相邻的点会把相距较远的区域并入同一簇，这是单链接的固有行为。
// 约束：每个地点恰好属于一个簇；空输入返回空切片；小规模输入为 O(n²) 两两比较，超过 IndexMinPlaces 时用 R-Tree 预筛，分区结果一致。
func (c *Clusterer) Cluster(places []Place) []Cluster {
	out := make([]Cluster, 0)
	if len(places) == 0 {
		return out
	}
	nb := c.neighbors(places)
	visited := make([]bool, len(places))
	for i := range places {
		if visited[i] {
			continue
		}
		visited[i] = true
		queue := []int{i}
		var members []Place
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			members = append(members, places[cur])
			for _, j := range nb.near(cur) {
				if !visited[j] {
					visited[j] = true
					queue = append(queue, j)
				}
			}
		}
		out = append(out, c.build(len(out), members))
	}
	return out
}

func (c *Clusterer) build(idx int, members []Place) Cluster {
	center, _ := geo.Centroid(locations(members))
	radius := c.radius(center, members)
	name := c.cfg.Namer.Name(members)
	if name == "" {
		name = fmt.Sprintf("Area %d", idx+1)
	}
	return Cluster{
		ID:           fmt.Sprintf("zone-%d", idx),
		Places:       members,
		Center:       center,
		AreaName:     name,
		Count:        len(members),
		Intensity:    Classify(len(members), c.cfg),
		RadiusMeters: radius,
		Metrics:      ComputeMetrics(members, radius, c.cfg),
	}
}

// radius：max(下限, 系数 × 最远成员距离)；单成员使用基础扩散距离
func (c *Clusterer) radius(center geo.LatLng, members []Place) float64 {
	spread := 0.0
	if len(members) == 1 {
		spread = c.cfg.SingleSpreadMeters
	} else {
		for _, p := range members {
			spread = math.Max(spread, geo.Distance(center, p.Location))
		}
	}
	return math.Max(c.cfg.MinRadiusMeters, c.cfg.RadiusFactor*spread)
}

type neighborFinder interface {
	// near 返回与 i 距离不超过阈值的其他下标（升序）
	near(i int) []int
}

func (c *Clusterer) neighbors(places []Place) neighborFinder {
	if len(places) > c.cfg.IndexMinPlaces {
		if rt, err := newRTreeNeighbors(places, c.cfg.ThresholdMeters); err == nil {
			return rt
		}
	}
	return &pairwiseNeighbors{places: places, threshold: c.cfg.ThresholdMeters}
}

type pairwiseNeighbors struct {
	places    []Place
	threshold float64
}

func (p *pairwiseNeighbors) near(i int) []int {
	var out []int
	for j := range p.places {
		if j != i && geo.Distance(p.places[i].Location, p.places[j].Location) <= p.threshold {
			out = append(out, j)
		}
	}
	return out
}

// 文档注释：R-Tree 邻居预筛
// 约束：查询框由 MaxLatDelta/MaxLngDelta 推出，覆盖阈值内的全部点；跨 ±180° 时再查一次平移 360° 的框；最终仍以 Haversine 判定。
type rtreeNeighbors struct {
	places    []Place
	threshold float64
	tree      *rtreego.Rtree
}

type rtreeItem struct {
	idx  int
	rect rtreego.Rect
}

func (it *rtreeItem) Bounds() rtreego.Rect { return it.rect }

const pointEps = 1e-9

func newRTreeNeighbors(places []Place, threshold float64) (*rtreeNeighbors, error) {
	tree := rtreego.NewTree(2, 25, 50)
	for i, p := range places {
		r, err := rtreego.NewRect(rtreego.Point{p.Location.Lng, p.Location.Lat}, []float64{pointEps, pointEps})
		if err != nil {
			return nil, err
		}
		tree.Insert(&rtreeItem{idx: i, rect: r})
	}
	return &rtreeNeighbors{places: places, threshold: threshold, tree: tree}, nil
}

func (r *rtreeNeighbors) near(i int) []int {
	p := r.places[i].Location
	dLat := geo.MaxLatDelta(r.threshold) + pointEps
	dLng := geo.MaxLngDelta(p.Lat, r.threshold) + pointEps
	shifts := []float64{0}
	if p.Lng-dLng < -180 {
		shifts = append(shifts, 360)
	}
	if p.Lng+dLng > 180 {
		shifts = append(shifts, -360)
	}
	seen := make(map[int]struct{})
	var out []int
	for _, shift := range shifts {
		q, err := rtreego.NewRect(rtreego.Point{p.Lng + shift - dLng, p.Lat - dLat}, []float64{2 * dLng, 2 * dLat})
		if err != nil {
			return (&pairwiseNeighbors{places: r.places, threshold: r.threshold}).near(i)
		}
		for _, s := range r.tree.SearchIntersect(q) {
			j := s.(*rtreeItem).idx
			if _, dup := seen[j]; dup || j == i {
				continue
			}
			seen[j] = struct{}{}
			if geo.Distance(p, r.places[j].Location) <= r.threshold {
				out = append(out, j)
			}
		}
	}
	sort.Ints(out)
	return out
}
