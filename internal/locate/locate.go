// 包 locate：根据访问者 IP 给出默认地图视口
package locate

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"gapmap/internal/geo"

	"github.com/oschwald/geoip2-golang"
)

var (
	ErrUnknownIP = errors.New("locate: ip not found")
	ErrBadIP     = errors.New("locate: invalid ip")
)

// DefaultRadiusMeters 视口半宽；库给出的精度半径更大时取精度半径
const DefaultRadiusMeters = 3000.0

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Viewport 以城市坐标为中心的默认视口
type Viewport struct {
	IP      string     `json:"ip"`
	City    string     `json:"city,omitempty"`
	Country string     `json:"country,omitempty"`
	Center  geo.LatLng `json:"center"`
	Bounds  geo.Bounds `json:"bounds"`
}

// 文档注释：GeoLite2-City 定位器
// 约束：Reader 只读、可并发；私网/回环地址与库中缺失的地址返回 ErrUnknownIP
type Locator struct {
	r      cityReader
	Radius float64
}

func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &Locator{r: r, Radius: DefaultRadiusMeters}, nil
}

func (l *Locator) Close() error { return l.r.Close() }

func (l *Locator) Viewport(ipStr string) (*Viewport, error) {
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadIP, ipStr)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return nil, ErrUnknownIP
	}
	rec, err := l.r.City(ip)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return nil, ErrUnknownIP
	}
	center := geo.LatLng{Lat: rec.Location.Latitude, Lng: rec.Location.Longitude}
	radius := l.Radius
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	if acc := float64(rec.Location.AccuracyRadius) * 1000; acc > radius {
		radius = acc
	}
	return &Viewport{
		IP:      ip.String(),
		City:    rec.City.Names["en"],
		Country: rec.Country.IsoCode,
		Center:  center,
		Bounds:  geo.BoundsAround(center, radius),
	}, nil
}

// 文档注释：获取访问者 IP
// 背景：优先显式 ip 参数，其次常见代理头，最后取连接地址。
// 约束：依赖代理头顺序；部署于未经信任的代理链路需配合网关过滤。
func ClientIP(r *http.Request) string {
	if q := r.URL.Query().Get("ip"); q != "" {
		return q
	}
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(k); x != "" {
			return x
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
			y := strings.Trim(x[i+4:], "\" ")
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\"[]")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
