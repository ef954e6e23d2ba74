// 包 revgeo：离线反地理编码（片区边界点入多边形判定 + 片区质心最近邻兜底）
package revgeo

import (
	"time"

	"gapmap/internal/geo"

	"github.com/paulmach/orb"
)

// 文档注释：片区（街区/镇区）边界
// 约束：几何仅支持 GeoJSON 的 Polygon/MultiPolygon，统一转为 MultiPolygon；Bound 用于快速包围盒过滤。
type Area struct {
	Name     string
	District string
	City     string
	State    string
	Polys    orb.MultiPolygon
	Bound    orb.Bound
}

// Label 由细到粗第一个非空名称
func (a Area) Label() string {
	for _, s := range []string{a.Name, a.District, a.City} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Centroid 片区质心表项（最近邻兜底）
type Centroid struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (c Centroid) LatLng() geo.LatLng { return geo.LatLng{Lat: c.Lat, Lng: c.Lng} }

// Snapshot 加载结果快照：只读引用，供查询期共享
type Snapshot struct {
	Areas     []Area
	Centroids []Centroid
	BuiltAt   time.Time
}
