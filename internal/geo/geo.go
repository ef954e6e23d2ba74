// 包 geo：纯坐标几何工具（距离、质心、视口），不依赖任何地图 SDK；SDK 坐标对象在边界处转换为 LatLng
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters 球面半径（米）
const EarthRadiusMeters = 6371000.0

var (
	ErrEmptyPoints   = errors.New("geo: empty point list")
	ErrInvalidBounds = errors.New("geo: invalid bounds")
)

// LatLng：WGS84 经纬度
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid：有限数且在经纬度取值范围内
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p LatLng) String() string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

// Distance：Haversine 球面距离，返回米
func Distance(a, b LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	if s > 1 {
		s = 1
	}
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusMeters * c
}

// Centroid：算术平均位置
// 约束：空输入返回 ErrEmptyPoints，调用方不得依赖 NaN
func Centroid(points []LatLng) (LatLng, error) {
	if len(points) == 0 {
		return LatLng{}, ErrEmptyPoints
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return LatLng{Lat: lat / n, Lng: lng / n}, nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Bounds：视口（东北角与西南角）
// 约束：不支持跨越 180° 经线的视口（west 必须不大于 east）
type Bounds struct {
	NorthEast LatLng `json:"northeast"`
	SouthWest LatLng `json:"southwest"`
}

func NewBounds(south, west, north, east float64) Bounds {
	return Bounds{NorthEast: LatLng{Lat: north, Lng: east}, SouthWest: LatLng{Lat: south, Lng: west}}
}

// ParseBounds 解析 "south,west,north,east" 文本（CLI 与查询参数使用）
func ParseBounds(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("%w: want south,west,north,east, got %q", ErrInvalidBounds, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("%w: %v", ErrInvalidBounds, err)
		}
		v[i] = f
	}
	b := NewBounds(v[0], v[1], v[2], v[3])
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// Validate：角点有效且南不大于北、西不大于东；零面积视口合法
func (b Bounds) Validate() error {
	if !b.NorthEast.Valid() || !b.SouthWest.Valid() {
		return fmt.Errorf("%w: corner out of range", ErrInvalidBounds)
	}
	if b.SouthWest.Lat > b.NorthEast.Lat {
		return fmt.Errorf("%w: south %.6f above north %.6f", ErrInvalidBounds, b.SouthWest.Lat, b.NorthEast.Lat)
	}
	if b.SouthWest.Lng > b.NorthEast.Lng {
		return fmt.Errorf("%w: west %.6f east of east %.6f", ErrInvalidBounds, b.SouthWest.Lng, b.NorthEast.Lng)
	}
	return nil
}

func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat && p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

func (b Bounds) Center() LatLng {
	return b.At(0.5, 0.5)
}

// At：按比例取视口内位置，fy 沿纬度（0=南），fx 沿经度（0=西）
func (b Bounds) At(fy, fx float64) LatLng {
	return LatLng{
		Lat: b.SouthWest.Lat + (b.NorthEast.Lat-b.SouthWest.Lat)*fy,
		Lng: b.SouthWest.Lng + (b.NorthEast.Lng-b.SouthWest.Lng)*fx,
	}
}

// WidthMeters 沿中心纬度的东西宽度
func (b Bounds) WidthMeters() float64 {
	c := b.Center()
	return Distance(LatLng{Lat: c.Lat, Lng: b.SouthWest.Lng}, LatLng{Lat: c.Lat, Lng: b.NorthEast.Lng})
}

// HeightMeters 南北高度
func (b Bounds) HeightMeters() float64 {
	return Distance(LatLng{Lat: b.SouthWest.Lat, Lng: b.SouthWest.Lng}, LatLng{Lat: b.NorthEast.Lat, Lng: b.SouthWest.Lng})
}

// DiagonalMeters 西南到东北的距离
func (b Bounds) DiagonalMeters() float64 { return Distance(b.SouthWest, b.NorthEast) }

// BoundsAround：以 center 为中心、radius 米为半边长的视口；纬度截断到 ±90，经度截断到 ±180
func BoundsAround(center LatLng, radiusMeters float64) Bounds {
	dLat := toDeg(radiusMeters / EarthRadiusMeters)
	dLng := MaxLngDelta(center.Lat, radiusMeters)
	return NewBounds(
		math.Max(-90, center.Lat-dLat),
		math.Max(-180, center.Lng-dLng),
		math.Min(90, center.Lat+dLat),
		math.Min(180, center.Lng+dLng),
	)
}

// MaxLngDelta：纬度 lat 处距离不超过 d 米的点的最大经度差（度）
// 约束：极区或 d 过大时返回 180，调用方据此做整圈搜索
func MaxLngDelta(lat, d float64) float64 {
	ang := d / EarthRadiusMeters
	if ang >= math.Pi/2 {
		return 180
	}
	x := math.Sin(ang) / math.Cos(toRad(lat))
	if x >= 1 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 180
	}
	return toDeg(math.Asin(x))
}

// MaxLatDelta：距离 d 米对应的纬度差（度）
func MaxLatDelta(d float64) float64 { return toDeg(d / EarthRadiusMeters) }
