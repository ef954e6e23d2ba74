// 包 geocode：坐标到片区名的反地理编码实现（Google、Redis 缓存、链式回退、指标包装）
package geocode

import (
	"context"
	"errors"
	"strings"
	"time"

	"gapmap/internal/geo"
	"gapmap/internal/metrics"
)

// ErrNoResult 坐标处没有可用的片区名
var ErrNoResult = errors.New("geocode: no result")

// Geocoder 与 zone.ReverseGeocoder 同形，可直接注入缺口搜索
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error)
}

// Func 函数适配器
type Func func(ctx context.Context, p geo.LatLng) (string, error)

func (f Func) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) { return f(ctx, p) }

// Instrumented 为内部实现记录调用次数、失败数与耗时（按名称分标签）
type Instrumented struct {
	Name  string
	Inner Geocoder
}

func (g *Instrumented) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) {
	t0 := time.Now()
	metrics.GeocodeRequestsTotal.WithLabelValues(g.Name).Inc()
	name, err := g.Inner.ReverseGeocode(ctx, p)
	metrics.GeocodeDurationMs.WithLabelValues(g.Name).Observe(float64(time.Since(t0).Milliseconds()))
	if err == nil && strings.TrimSpace(name) == "" {
		err = ErrNoResult
	}
	if err != nil {
		metrics.GeocodeFailTotal.WithLabelValues(g.Name).Inc()
		return "", err
	}
	return name, nil
}
