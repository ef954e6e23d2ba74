package revgeo

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"gapmap/internal/geo"
)

// ErrNoArea 坐标不在任何片区内且最近质心超出半径
var ErrNoArea = errors.New("revgeo: no area")

// Options 零值字段回落到默认值（缓存 4096 条/1 小时，兜底半径 5km）
type Options struct {
	CacheSize       int
	CacheTTL        time.Duration
	MaxRadiusMeters float64
}

// 文档注释：离线反地理编码器（包围盒过滤 → PIP 命中 → 质心最近邻兜底）
// 约束：命中多个嵌套片区时取包围盒最小者；结果（含兜底）按 geohash(6) 缓存。
type Geocoder struct {
	snap            *Snapshot
	ix              *geo.Index
	cache           *LRU
	maxRadiusMeters float64
}

func NewGeocoder(snap *Snapshot, opt Options) *Geocoder {
	if snap == nil {
		snap = &Snapshot{}
	}
	if opt.CacheSize <= 0 {
		opt.CacheSize = 4096
	}
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = time.Hour
	}
	if opt.MaxRadiusMeters <= 0 {
		opt.MaxRadiusMeters = 5000
	}
	pts := make([]geo.LatLng, len(snap.Centroids))
	for i, c := range snap.Centroids {
		pts[i] = c.LatLng()
	}
	return &Geocoder{
		snap:            snap,
		ix:              geo.NewIndex(pts),
		cache:           NewLRU(opt.CacheSize, opt.CacheTTL),
		maxRadiusMeters: opt.MaxRadiusMeters,
	}
}

func (g *Geocoder) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := geo.Geohash(p, 6)
	if v, ok := g.cache.Get(key); ok {
		return v, nil
	}
	name, ok := g.lookup(p)
	if !ok {
		return "", ErrNoArea
	}
	g.cache.Set(key, name)
	return name, nil
}

func (g *Geocoder) lookup(p geo.LatLng) (string, bool) {
	best := -1
	for i := range g.snap.Areas {
		a := &g.snap.Areas[i]
		if a.Label() == "" || !a.contains(p) {
			continue
		}
		if best < 0 || a.boundArea() < g.snap.Areas[best].boundArea() {
			best = i
		}
	}
	if best >= 0 {
		return g.snap.Areas[best].Label(), true
	}
	if idx, d, ok := g.ix.Nearest(p); ok && d <= g.maxRadiusMeters {
		return g.snap.Centroids[idx].Name, true
	}
	return "", false
}

// 文档注释：可热替换的离线反地理编码器
// 背景：数据目录更新后 Reload 重新加载并原子切换，读路径不加锁。
// 约束：未设置时查询返回 ErrNoArea；Reload 失败保留旧快照。
type Dynamic struct {
	v   atomic.Pointer[Geocoder]
	opt Options
}

func NewDynamic(opt Options) *Dynamic { return &Dynamic{opt: opt} }

func (d *Dynamic) Set(g *Geocoder) { d.v.Store(g) }

func (d *Dynamic) Reload(dir string) error {
	snap, err := LoadSnapshot(dir)
	if err != nil {
		return err
	}
	d.Set(NewGeocoder(snap, d.opt))
	return nil
}

func (d *Dynamic) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) {
	g := d.v.Load()
	if g == nil {
		return "", ErrNoArea
	}
	return g.ReverseGeocode(ctx, p)
}
