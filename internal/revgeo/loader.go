package revgeo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CentroidsFile 质心文件名（JSON 数组：[{name,lat,lng}]）
const CentroidsFile = "centroids.json"

// 文档注释：从数据目录加载边界与质心快照
// 背景：目录内每个 *.geojson 为一个 FeatureCollection；面要素（Polygon/MultiPolygon）作为片区边界，点要素作为质心。
// 约束：
// - 属性读取 name/district/city/state，缺失为空；
// - 单个文件解析失败返回错误（带文件名），不做部分加载；
// - 目录不存在返回错误；空目录返回空快照，此时查询全部未命中。
func LoadSnapshot(dir string) (*Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("revgeo data dir: %w", err)
	}
	snap := &Snapshot{BuiltAt: time.Now()}
	if b, err := os.ReadFile(filepath.Join(dir, CentroidsFile)); err == nil {
		if err := json.Unmarshal(b, &snap.Centroids); err != nil {
			return nil, fmt.Errorf("%s: %w", CentroidsFile, err)
		}
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(strings.ToLower(ent.Name()), ".geojson") {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		fc, err := geojson.UnmarshalFeatureCollection(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		addFeatures(snap, fc)
	}
	return snap, nil
}

func addFeatures(snap *Snapshot, fc *geojson.FeatureCollection) {
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		name := f.Properties.MustString("name", "")
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Point:
			if name != "" {
				snap.Centroids = append(snap.Centroids, Centroid{Name: name, Lat: g.Lat(), Lng: g.Lon()})
			}
			continue
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		snap.Areas = append(snap.Areas, Area{
			Name:     name,
			District: f.Properties.MustString("district", ""),
			City:     f.Properties.MustString("city", ""),
			State:    f.Properties.MustString("state", ""),
			Polys:    mp,
			Bound:    mp.Bound(),
		})
	}
}
