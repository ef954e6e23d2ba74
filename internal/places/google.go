package places

import (
	"context"
	"fmt"
	"math"
	"time"

	"gapmap/internal/zone"

	"googlemaps.github.io/maps"
)

// nearbySearcher 由 *maps.Client 实现
type nearbySearcher interface {
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

const (
	googleMaxPages  = 3
	googleMaxRadius = 50000
)

// 文档注释：Google Places 附近搜索来源
// 背景：以视口中心为圆心、半对角线为半径搜索，再裁剪到视口内；翻页令牌需要短暂延迟后才生效。
// 约束：至多 3 页（约 60 条）；每页受 Timeout 约束；页间等待 PageDelay 并响应 ctx 取消。
type Google struct {
	client    nearbySearcher
	Timeout   time.Duration
	PageDelay time.Duration
}

func NewGoogle(apiKey string, timeout time.Duration) (*Google, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Google{client: c, Timeout: timeout, PageDelay: 2 * time.Second}, nil
}

func (g *Google) Name() string { return "google" }

// Heartbeat：客户端已构造即视为可用，配额错误在搜索时暴露
func (g *Google) Heartbeat(ctx context.Context) error {
	if g.client == nil {
		return fmt.Errorf("google: client not configured")
	}
	return nil
}

func (g *Google) Search(ctx context.Context, q Query) ([]zone.Place, error) {
	if err := q.Bounds.Validate(); err != nil {
		return nil, err
	}
	center := q.Bounds.Center()
	radius := math.Min(googleMaxRadius, math.Max(1, math.Ceil(q.Bounds.DiagonalMeters()/2)))
	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: center.Lat, Lng: center.Lng},
		Radius:   uint(radius),
		Keyword:  q.Keyword,
	}
	var out []zone.Place
	for page := 0; page < googleMaxPages; page++ {
		if page > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(g.PageDelay):
			}
		}
		resp, err := g.nearby(ctx, req)
		if err != nil {
			if page > 0 {
				break
			}
			return nil, fmt.Errorf("google nearby search: %w", err)
		}
		for _, r := range resp.Results {
			p := fromGoogle(r)
			if q.Bounds.Contains(p.Location) {
				out = append(out, p)
			}
		}
		if resp.NextPageToken == "" || (q.Limit > 0 && len(out) >= q.Limit) {
			break
		}
		req = &maps.NearbySearchRequest{PageToken: resp.NextPageToken}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (g *Google) nearby(ctx context.Context, req *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	return g.client.NearbySearch(ctx, req)
}

func fromGoogle(r maps.PlacesSearchResult) zone.Place {
	p := zone.Place{
		ID:      r.PlaceID,
		Name:    r.Name,
		Address: r.FormattedAddress,
		Types:   r.Types,
	}
	if p.Address == "" {
		p.Address = r.Vicinity
	}
	p.Location.Lat = r.Geometry.Location.Lat
	p.Location.Lng = r.Geometry.Location.Lng
	if r.Rating > 0 {
		p.Rating = zone.Ptr(math.Round(float64(r.Rating)*10) / 10)
	}
	if r.UserRatingsTotal > 0 {
		p.ReviewCount = zone.Ptr(r.UserRatingsTotal)
	}
	return p
}
