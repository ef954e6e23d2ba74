// 包 app：按配置装配地点来源、反地理编码链与分析器，供 HTTP 服务与 CLI 共用
package app

import (
	"fmt"
	"log/slog"

	"gapmap/internal/config"
	"gapmap/internal/geocode"
	"gapmap/internal/places"
	"gapmap/internal/revgeo"
	"gapmap/internal/zone"

	"github.com/redis/go-redis/v9"
)

// Geocoding 反地理编码链及其可热加载的离线部分
type Geocoding struct {
	// Geocoder 为空表示未配置任何实现，缺口命名回落到序号
	Geocoder geocode.Geocoder
	Offline  *revgeo.Dynamic
}

// 文档注释：构建反地理编码链
// 背景：离线边界数据优先（无网络、无配额），未命中再调用 Google；只有 Google 结果写入 Redis 缓存。
// 约束：rc 可为空；离线目录加载失败返回错误，由调用方决定是否降级。
func BuildGeocoding(cfg *config.Config, rc *redis.Client, l *slog.Logger) (*Geocoding, error) {
	var chain geocode.Chain
	out := &Geocoding{}
	if cfg.RevGeoDataDir != "" {
		d := revgeo.NewDynamic(revgeo.Options{})
		if err := d.Reload(cfg.RevGeoDataDir); err != nil {
			return nil, fmt.Errorf("load revgeo data: %w", err)
		}
		out.Offline = d
		chain = append(chain, &geocode.Instrumented{Name: "offline", Inner: d})
		l.Info("revgeo_ready", "dir", cfg.RevGeoDataDir)
	}
	if cfg.GoogleMapsAPIKey != "" {
		g, err := geocode.NewGoogle(cfg.GoogleMapsAPIKey, cfg.GeocodeTimeout)
		if err != nil {
			return nil, err
		}
		chain = append(chain, geocode.NewCached(&geocode.Instrumented{Name: "google", Inner: g}, rc, cfg.GeocodeCacheTTL))
		l.Info("geocoder_ready", "name", "google", "cache", rc != nil)
	}
	switch len(chain) {
	case 0:
		l.Info("geocoder_disabled")
	case 1:
		out.Geocoder = chain[0]
	default:
		out.Geocoder = chain
	}
	return out, nil
}

// BuildSources：Overpass 始终注册（未配置地址时使用公共实例），Google 需要 API Key
func BuildSources(cfg *config.Config, l *slog.Logger) (*places.Manager, error) {
	m := places.NewManager(l)
	m.SetHeartbeatInterval(cfg.HeartbeatEvery)
	if cfg.GoogleMapsAPIKey != "" {
		g, err := places.NewGoogle(cfg.GoogleMapsAPIKey, cfg.SourceTimeout)
		if err != nil {
			return nil, err
		}
		m.Register(g)
	}
	m.Register(places.NewOverpass(cfg.OverpassURL, cfg.SourceTimeout))
	return m, nil
}

// BuildAnalyzer：g 可为空
func BuildAnalyzer(cfg *config.Config, g geocode.Geocoder, l *slog.Logger) (*zone.Analyzer, error) {
	zc, err := cfg.ZoneConfig()
	if err != nil {
		return nil, err
	}
	var rg zone.ReverseGeocoder
	if g != nil {
		rg = g
	}
	return zone.NewAnalyzer(zc, zone.DefaultGapConfig(), rg, l), nil
}
