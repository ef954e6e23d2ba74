// 包 places：竞品地点来源（Google Places、OpenStreetMap Overpass）与来源管理器
package places

import (
	"context"
	"errors"
	"strings"

	"gapmap/internal/geo"
	"gapmap/internal/zone"
)

// ErrNoSources 没有已注册或健康的来源
var ErrNoSources = errors.New("places: no healthy sources")

// Query 视口内按关键字搜索；Limit<=0 表示不限
type Query struct {
	Bounds  geo.Bounds
	Keyword string
	Limit   int
}

// 文档注释：地点来源统一契约
// 约束：Search 只返回视口内的地点；Heartbeat 用于健康检测，失败的来源不参与搜索。
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]zone.Place, error)
	Heartbeat(ctx context.Context) error
}

// normalizeName 去重用的名称归一：小写并折叠空白与标点
func normalizeName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
