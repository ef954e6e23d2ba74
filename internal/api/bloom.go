package api

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bitStore 由 *redis.Client 实现
type bitStore interface {
	GetBit(ctx context.Context, key string, offset int64) *redis.IntCmd
	SetBit(ctx context.Context, key string, offset int64, value int) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

const (
	bloomKeyPrefix = "gapmap:bloom:stats:"
	bloomBits      = 1 << 20
	bloomHashes    = 4
	bloomTTL       = 26 * time.Hour
)

// 文档注释：计算布隆过滤器位置
// 参数：data 为参与哈希的字节序列，m 为位图大小，k 为哈希次数。
// 背景：FNV64a 加索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 文档注释：检查并写入布隆过滤器位图
// 背景：同一访问者对同一视口的重复分析只计入一次日统计。
// 返回：true 表示首次见到（已写入位图）；false 表示已存在。
// 异常：Redis 错误时返回 true 与 error，调用方按首次处理；rc 为 nil 时始终返回 true。
func bloomCheckAndSet(ctx context.Context, rc bitStore, key string, positions []int64, ttl time.Duration) (bool, error) {
	if rc == nil {
		return true, nil
	}
	seen := true
	for _, p := range positions {
		b, err := rc.GetBit(ctx, key, p).Result()
		if err != nil {
			return true, err
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return false, nil
	}
	for _, p := range positions {
		_, _ = rc.SetBit(ctx, key, p, 1).Result()
	}
	_ = rc.Expire(ctx, key, ttl).Err()
	return true, nil
}

// bloomKey 按自然日分桶
func bloomKey(now time.Time) string {
	return bloomKeyPrefix + now.UTC().Format("20060102")
}
