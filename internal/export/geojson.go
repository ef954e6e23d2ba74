// 包 export：把分析结果转换为 GeoJSON FeatureCollection，供地图前端直接叠加
package export

import (
	"math"

	"gapmap/internal/geo"
	"gapmap/internal/heatmap"
	"gapmap/internal/zone"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CircleSegments 簇范围多边形的顶点数
const CircleSegments = 32

// Feature kind 属性取值
const (
	KindCluster     = "cluster"
	KindClusterArea = "cluster_area"
	KindGap         = "gap"
	KindHeat        = "heat"
	KindPlace       = "place"
)

func point(p geo.LatLng) orb.Point { return orb.Point{p.Lng, p.Lat} }

// Circle：以 radius 米近似的闭合多边形；坐标顺序为 [lng, lat]
func Circle(center geo.LatLng, radiusMeters float64, segments int) orb.Polygon {
	if segments < 3 {
		segments = CircleSegments
	}
	dLat := geo.MaxLatDelta(radiusMeters)
	dLng := dLat / math.Cos(center.Lat*math.Pi/180)
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		th := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{center.Lng + dLng*math.Cos(th), center.Lat + dLat*math.Sin(th)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Analysis：簇中心点、簇范围与缺口点合并为一个集合；簇成员不展开
func Analysis(res *zone.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if res == nil {
		return fc
	}
	for _, c := range res.Clusters {
		f := geojson.NewFeature(point(c.Center))
		f.ID = c.ID
		f.Properties["kind"] = KindCluster
		f.Properties["areaName"] = c.AreaName
		f.Properties["count"] = c.Count
		f.Properties["intensity"] = string(c.Intensity)
		f.Properties["radius"] = c.RadiusMeters
		f.Properties["averageRating"] = c.AverageRating
		f.Properties["totalReviews"] = c.TotalReviews
		f.Properties["densityScore"] = c.DensityScore
		f.Properties["strengthScore"] = c.StrengthScore
		fc.Append(f)

		area := geojson.NewFeature(Circle(c.Center, c.RadiusMeters, CircleSegments))
		area.Properties["kind"] = KindClusterArea
		area.Properties["clusterId"] = c.ID
		area.Properties["intensity"] = string(c.Intensity)
		fc.Append(area)
	}
	for _, g := range res.Gaps {
		f := geojson.NewFeature(point(g.Location))
		f.ID = g.ID
		f.Properties["kind"] = KindGap
		f.Properties["areaName"] = g.AreaName
		f.Properties["radius"] = g.RadiusMeters
		f.Properties["distanceToNearest"] = g.NearestDistanceMeters
		f.Properties["opportunityScore"] = g.OpportunityScore
		if g.NearestPlace != "" {
			f.Properties["nearestPlace"] = g.NearestPlace
		}
		fc.Append(f)
	}
	return fc
}

// Heat：每个网格单元一个点，cellSize 写入属性供前端设置渲染半径
func Heat(points []heatmap.WeightedPoint, cellSizeMeters float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		f := geojson.NewFeature(point(p.Location))
		f.Properties["kind"] = KindHeat
		f.Properties["weight"] = p.Weight
		f.Properties["cellSize"] = cellSizeMeters
		fc.Append(f)
	}
	return fc
}

func Places(places []zone.Place) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range places {
		f := geojson.NewFeature(point(p.Location))
		if p.ID != "" {
			f.ID = p.ID
		}
		f.Properties["kind"] = KindPlace
		f.Properties["name"] = p.Name
		if p.Address != "" {
			f.Properties["address"] = p.Address
		}
		if p.Rating != nil {
			f.Properties["rating"] = *p.Rating
		}
		if p.ReviewCount != nil {
			f.Properties["reviewCount"] = *p.ReviewCount
		}
		fc.Append(f)
	}
	return fc
}
