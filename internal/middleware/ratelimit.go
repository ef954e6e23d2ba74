package middleware

import (
	"net/http"
	"sync"
	"time"

	"gapmap/internal/config"
	"gapmap/internal/metrics"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：分析与热力图请求会触发外部地点搜索和逆地理调用，峰值时对入口限速，避免配额被瞬间耗尽。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429；每秒补满至 capacity，Burst 为额外的一次性余量。
type TokenBucket struct {
	capacity int
	tokens   int
	burst    int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps, burst int) *TokenBucket {
	if qps <= 0 {
		qps = 1
	}
	if burst < 0 {
		burst = 0
	}
	tb := &TokenBucket{capacity: qps, burst: burst, now: time.Now}
	tb.lastSec = tb.now().Unix()
	tb.tokens = qps
	return tb
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	if tb.burst > 0 {
		tb.burst--
		return true
	}
	return false
}

// Wrap：未启用时原样返回 next
func Wrap(next http.Handler, c config.RateLimit) http.Handler {
	if !c.Enabled {
		return next
	}
	tb := NewTokenBucket(c.QPS, c.Burst)
	return Limit(next, tb)
}

func Limit(next http.Handler, tb *TokenBucket) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
