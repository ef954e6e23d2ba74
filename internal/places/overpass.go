package places

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gapmap/internal/zone"

	"github.com/serjvanilla/go-overpass"
)

// DefaultOverpassURL 公共 Overpass 实例
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// overpassQuerier 由 overpass.Client 实现
type overpassQuerier interface {
	Query(q string) (overpass.Result, error)
}

// osmElement 节点或路（取节点均值为位置）的扁平表示
type osmElement struct {
	Kind string
	ID   int64
	Lat  float64
	Lon  float64
	Tags map[string]string
}

// 文档注释：OpenStreetMap Overpass 来源
// 背景：按关键字映射到 amenity/shop 标签，或按名称正则匹配；OSM 不含评分与评论数，服务能力来自 delivery/takeaway/indoor_seating/wheelchair 标签。
// 约束：底层客户端不支持 ctx，查询在独立 goroutine 中执行，ctx 取消时立即返回（后台请求由 HTTP 超时兜底）。
type Overpass struct {
	client  overpassQuerier
	Timeout time.Duration
}

func NewOverpass(endpoint string, timeout time.Duration) *Overpass {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	c := overpass.NewWithSettings(endpoint, 2, &http.Client{Timeout: timeout})
	return &Overpass{client: &c, Timeout: timeout}
}

func (o *Overpass) Name() string { return "overpass" }

func (o *Overpass) Heartbeat(ctx context.Context) error {
	_, err := o.query(ctx, "[out:json][timeout:5];node(1);out ids;")
	return err
}

func (o *Overpass) Search(ctx context.Context, q Query) ([]zone.Place, error) {
	if err := q.Bounds.Validate(); err != nil {
		return nil, err
	}
	res, err := o.query(ctx, buildOverpassQuery(q))
	if err != nil {
		return nil, fmt.Errorf("overpass search: %w", err)
	}
	var out []zone.Place
	for _, el := range elements(res) {
		p, ok := el.place()
		if !ok || !q.Bounds.Contains(p.Location) {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (o *Overpass) query(ctx context.Context, q string) (overpass.Result, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	type reply struct {
		res overpass.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		r, err := o.client.Query(q)
		ch <- reply{r, err}
	}()
	select {
	case <-ctx.Done():
		return overpass.Result{}, ctx.Err()
	case r := <-ch:
		return r.res, r.err
	}
}

// amenityFilters 常见关键字到 OSM 标签值
var amenityFilters = map[string]string{
	"cafe":        "cafe",
	"coffee":      "cafe",
	"restaurant":  "restaurant|fast_food|food_court",
	"food":        "restaurant|fast_food|food_court|cafe",
	"bar":         "bar|pub",
	"pharmacy":    "pharmacy",
	"bakery":      "bakery",
	"supermarket": "supermarket|convenience",
	"gym":         "fitness_centre",
	"laundry":     "laundry|dry_cleaning",
}

func buildOverpassQuery(q Query) string {
	bbox := fmt.Sprintf("(%f,%f,%f,%f)", q.Bounds.SouthWest.Lat, q.Bounds.SouthWest.Lng, q.Bounds.NorthEast.Lat, q.Bounds.NorthEast.Lng)
	kw := strings.ToLower(strings.TrimSpace(q.Keyword))
	var sel []string
	if f, ok := amenityFilters[kw]; ok {
		for _, k := range []string{"amenity", "shop", "leisure"} {
			sel = append(sel, fmt.Sprintf(`nwr["%s"~"^(%s)$"]%s;`, k, f, bbox))
		}
	} else {
		re := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(regexp.QuoteMeta(kw))
		sel = append(sel,
			fmt.Sprintf(`nwr["name"~"%s",i]%s;`, re, bbox),
			fmt.Sprintf(`nwr["cuisine"~"%s",i]%s;`, re, bbox),
		)
	}
	return "[out:json][timeout:25];(" + strings.Join(sel, "") + ");out body;>;out skel qt;"
}

// elements 展开节点与路并按 (类型, ID) 排序，保证输出稳定
func elements(res overpass.Result) []osmElement {
	var out []osmElement
	for _, n := range res.Nodes {
		if n == nil || len(n.Tags) == 0 {
			continue
		}
		out = append(out, osmElement{Kind: "node", ID: n.ID, Lat: n.Lat, Lon: n.Lon, Tags: n.Tags})
	}
	for _, w := range res.Ways {
		if w == nil || len(w.Tags) == 0 || len(w.Nodes) == 0 {
			continue
		}
		var lat, lon float64
		cnt := 0
		for _, n := range w.Nodes {
			if n == nil {
				continue
			}
			lat += n.Lat
			lon += n.Lon
			cnt++
		}
		if cnt == 0 {
			continue
		}
		out = append(out, osmElement{Kind: "way", ID: w.ID, Lat: lat / float64(cnt), Lon: lon / float64(cnt), Tags: w.Tags})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// place 无名称的要素不视为竞品
func (e osmElement) place() (zone.Place, bool) {
	name := e.Tags["name"]
	if name == "" {
		return zone.Place{}, false
	}
	p := zone.Place{
		ID:                   e.Kind + "/" + strconv.FormatInt(e.ID, 10),
		Name:                 name,
		Address:              osmAddress(e.Tags),
		Delivery:             osmBool(e.Tags["delivery"]),
		Takeout:              osmBool(e.Tags["takeaway"]),
		DineIn:               osmBool(e.Tags["indoor_seating"]),
		WheelchairAccessible: osmBool(e.Tags["wheelchair"]),
	}
	p.Location.Lat = e.Lat
	p.Location.Lng = e.Lon
	for _, k := range []string{"amenity", "shop", "cuisine"} {
		if v := e.Tags[k]; v != "" {
			p.Types = append(p.Types, v)
		}
	}
	return p, true
}

// osmAddress 拼成 "街道, 片区, 邮编 城市" 形式，与 Google 地址的逗号分段习惯一致
func osmAddress(tags map[string]string) string {
	var parts []string
	street := strings.TrimSpace(tags["addr:housenumber"] + " " + tags["addr:street"])
	if street != "" {
		parts = append(parts, street)
	}
	for _, k := range []string{"addr:suburb", "addr:district"} {
		if v := tags[k]; v != "" {
			parts = append(parts, v)
			break
		}
	}
	if city := strings.TrimSpace(tags["addr:postcode"] + " " + tags["addr:city"]); city != "" {
		parts = append(parts, city)
	}
	if v := tags["addr:state"]; v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, ", ")
}

// osmBool yes/only/limited 记为有，no 记为无，其他取值视为未知
func osmBool(v string) *bool {
	switch strings.ToLower(v) {
	case "yes", "only", "limited":
		return zone.Ptr(true)
	case "no":
		return zone.Ptr(false)
	}
	return nil
}
