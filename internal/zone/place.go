// 包 zone：竞品聚类、簇指标、市场缺口搜索与市场概览；纯计算，不做网络调用（反地理编码通过接口注入）
package zone

import "gapmap/internal/geo"

// 文档注释：竞品地点（外部输入）
// 约束：调用方持有并保证只读；可选字段使用指针以区分“未提供”与零值
type Place struct {
	ID                   string     `json:"id,omitempty"`
	Name                 string     `json:"name"`
	Address              string     `json:"address"`
	Location             geo.LatLng `json:"location"`
	Rating               *float64   `json:"rating,omitempty"`
	ReviewCount          *int       `json:"reviewCount,omitempty"`
	Types                []string   `json:"types,omitempty"`
	Delivery             *bool      `json:"delivery,omitempty"`
	Takeout              *bool      `json:"takeout,omitempty"`
	DineIn               *bool      `json:"dineIn,omitempty"`
	WheelchairAccessible *bool      `json:"wheelchairAccessible,omitempty"`
	Elevation            *float64   `json:"elevation,omitempty"`
	AirQualityIndex      *int       `json:"airQualityIndex,omitempty"`
}

// Ptr 构造可选字段
func Ptr[T any](v T) *T { return &v }

// RatingValue 未评分返回 0
func (p Place) RatingValue() float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// Reviews 未提供返回 0
func (p Place) Reviews() int {
	if p.ReviewCount == nil {
		return 0
	}
	return *p.ReviewCount
}

func isTrue(b *bool) bool { return b != nil && *b }

func locations(places []Place) []geo.LatLng {
	out := make([]geo.LatLng, len(places))
	for i, p := range places {
		out[i] = p.Location
	}
	return out
}
