package geocode

import (
	"context"
	"fmt"
	"time"

	"gapmap/internal/geo"

	"googlemaps.github.io/maps"
)

// googleReverser 由 *maps.Client 实现；测试中替换为桩
type googleReverser interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// 文档注释：Google 反地理编码
// 背景：从地址组件中按由细到粗的优先级挑选片区名（sublocality > neighborhood > locality > 二级行政区）。
// 约束：每次调用受 Timeout 约束；无可用组件返回 ErrNoResult。
type Google struct {
	client   googleReverser
	Timeout  time.Duration
	Language string
}

func NewGoogle(apiKey string, timeout time.Duration) (*Google, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Google{client: c, Timeout: timeout}, nil
}

func (g *Google) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	res, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
		Language: g.Language,
	})
	if err != nil {
		return "", fmt.Errorf("google reverse geocode: %w", err)
	}
	if name := areaFromResults(res); name != "" {
		return name, nil
	}
	return "", ErrNoResult
}

var areaTypePriority = []string{
	"sublocality_level_1",
	"sublocality",
	"neighborhood",
	"locality",
	"administrative_area_level_2",
}

// areaFromResults 所有结果中优先级最高的组件名；同优先级取先出现者
func areaFromResults(results []maps.GeocodingResult) string {
	found := make(map[string]string)
	for _, r := range results {
		for _, c := range r.AddressComponents {
			for _, t := range c.Types {
				if _, ok := found[t]; !ok && c.LongName != "" {
					found[t] = c.LongName
				}
			}
		}
	}
	for _, t := range areaTypePriority {
		if name, ok := found[t]; ok {
			return name
		}
	}
	return ""
}
