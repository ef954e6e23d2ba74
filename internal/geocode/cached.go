package geocode

import (
	"context"
	"encoding/json"
	"time"

	"gapmap/internal/geo"
	"gapmap/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix Redis 键前缀，后接坐标 geohash
const KeyPrefix = "gapmap:revgeo:"

// kv 为 *redis.Client 的最小子集
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type cachedEntry struct {
	Name string `json:"name"`
	At   int64  `json:"at"`
}

// 文档注释：Redis 热点缓存
// 背景：相邻缺口候选常落在同一 geohash 格内（精度 7 约 150m），缓存命中可省去一次外部调用。
// 约束：Redis 读写失败不影响主流程，只记作未命中；仅缓存成功且非空的结果。
type Cached struct {
	Inner     Geocoder
	rc        kv
	TTL       time.Duration
	Precision int
}

func NewCached(inner Geocoder, rc *redis.Client, ttl time.Duration) *Cached {
	if rc == nil {
		return newCached(inner, nil, ttl)
	}
	return newCached(inner, rc, ttl)
}

func newCached(inner Geocoder, rc kv, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{Inner: inner, rc: rc, TTL: ttl, Precision: 7}
}

func (c *Cached) key(p geo.LatLng) string { return KeyPrefix + geo.Geohash(p, c.Precision) }

func (c *Cached) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) {
	key := c.key(p)
	if c.rc != nil {
		if s, err := c.rc.Get(ctx, key).Result(); err == nil && s != "" {
			var e cachedEntry
			if json.Unmarshal([]byte(s), &e) == nil && e.Name != "" {
				metrics.GeocodeCacheHitsTotal.Inc()
				return e.Name, nil
			}
		}
		metrics.GeocodeCacheMissesTotal.Inc()
	}
	name, err := c.Inner.ReverseGeocode(ctx, p)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrNoResult
	}
	if c.rc != nil {
		b, _ := json.Marshal(cachedEntry{Name: name, At: time.Now().Unix()})
		_ = c.rc.Set(ctx, key, string(b), c.TTL).Err()
	}
	return name, nil
}
