package revgeo

import (
	"gapmap/internal/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// contains 包围盒预筛后做点入多边形判定（含洞与多面）
// 约束：按平面经纬度判定；片区尺度下误差可忽略，不支持跨 180° 经线的多边形
func (a Area) contains(p geo.LatLng) bool {
	pt := orb.Point{p.Lng, p.Lat}
	if !a.Bound.Contains(pt) {
		return false
	}
	return planar.MultiPolygonContains(a.Polys, pt)
}

// boundArea 包围盒面积（平方度），用于在嵌套片区中挑最细的一个
func (a Area) boundArea() float64 {
	return (a.Bound.Max.Lon() - a.Bound.Min.Lon()) * (a.Bound.Max.Lat() - a.Bound.Min.Lat())
}
