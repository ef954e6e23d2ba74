// 包 utils：Postgres/Redis 连接与 TLS 证书工具
package utils

import (
	"context"
	"fmt"
	"time"

	"gapmap/internal/config"
	"gapmap/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：使用地址与密码打开 Redis 客户端
// 背景：保留直接传入参数的能力，用于测试与手工注入场景
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromConfig：按配置打开并 PING 一次
// 约束：PING 失败返回错误，由调用方决定是否降级为无缓存运行
func OpenRedisFromConfig(ctx context.Context, c config.Redis) (*redis.Client, error) {
	logger.L().Debug("redis_open", "addr", c.Addr, "db", c.DB)
	rc := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	return rc, nil
}
