package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gapmap/internal/geo"
)

// 文档注释：链式反地理编码
// 背景：按切片顺序逐个尝试（app.BuildGeocoding 中离线边界库在前，在线服务在后）；前一个失败或返回空名时尝试下一个。
// 约束：全部失败时返回合并错误（errors.Join），可用 errors.Is 判定 ErrNoResult；上下文取消时立即返回。
type Chain []Geocoder

func (c Chain) ReverseGeocode(ctx context.Context, p geo.LatLng) (string, error) {
	var errs []error
	for i, g := range c {
		if g == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name, err := g.ReverseGeocode(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("geocoder %d: %w", i, err))
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	if len(errs) == 0 {
		return "", ErrNoResult
	}
	return "", errors.Join(append(errs, ErrNoResult)...)
}
