// 包 heatmap：反距离加权（IDW）插值生成热力网格
package heatmap

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gapmap/internal/geo"
	"gapmap/internal/zone"
)

// Mode 网格打分方式
type Mode string

const (
	// ModeCompetition 分值 = 评分 × 评论数，越热竞争越激烈
	ModeCompetition Mode = "competition"
	// ModeOpportunity 分值取倒数，越热竞品越弱
	ModeOpportunity Mode = "opportunity"
)

// ParseMode 空串视为 ModeCompetition
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCompetition:
		return ModeCompetition, nil
	case ModeOpportunity:
		return ModeOpportunity, nil
	}
	return "", fmt.Errorf("unknown heatmap mode %q", s)
}

const (
	// MaxCellsPerSide 单边单元数上限；网格计算量为 CellsPerSide² × 竞品数
	MaxCellsPerSide = 200
	// MaxIDWPower 距离幂次上限，超出按上限处理
	MaxIDWPower = 8.0
)

var ErrGridTooLarge = errors.New("heatmap: grid too large")

// GridConfig 零值字段回落到默认值
type GridConfig struct {
	CellsPerSide int     `json:"cellsPerSide,omitempty"`
	MinCellSize  float64 `json:"minCellSize,omitempty"`
	MaxCellSize  float64 `json:"maxCellSize,omitempty"`
	IDWPower     float64 `json:"idwPower,omitempty"`
	IDWSmoothing float64 `json:"idwSmoothing,omitempty"`
}

func DefaultGridConfig() GridConfig {
	return GridConfig{CellsPerSide: 25, MinCellSize: 150, MaxCellSize: 800, IDWPower: 2, IDWSmoothing: 100}
}

func (c GridConfig) withDefaults() GridConfig {
	d := DefaultGridConfig()
	if c.CellsPerSide <= 0 {
		c.CellsPerSide = d.CellsPerSide
	}
	if c.MinCellSize <= 0 {
		c.MinCellSize = d.MinCellSize
	}
	if c.MaxCellSize <= 0 {
		c.MaxCellSize = d.MaxCellSize
	}
	if c.MaxCellSize < c.MinCellSize {
		c.MaxCellSize = c.MinCellSize
	}
	if c.IDWPower <= 0 {
		c.IDWPower = d.IDWPower
	}
	c.IDWPower = math.Min(c.IDWPower, MaxIDWPower)
	if c.IDWSmoothing <= 0 {
		c.IDWSmoothing = d.IDWSmoothing
	}
	return c
}

// Validate：CellsPerSide 超过 MaxCellsPerSide 时返回 ErrGridTooLarge
func (c GridConfig) Validate() error {
	if c.CellsPerSide > MaxCellsPerSide {
		return fmt.Errorf("%w: cellsPerSide %d > %d", ErrGridTooLarge, c.CellsPerSide, MaxCellsPerSide)
	}
	return nil
}

// WeightedPoint 网格单元中心及其归一化权重（0-100）
type WeightedPoint struct {
	Location geo.LatLng `json:"location"`
	Weight   float64    `json:"weight"`
}

// Score 单个竞品在给定模式下的分值
func Score(p zone.Place, mode Mode) float64 {
	v := p.RatingValue() * float64(p.Reviews())
	if mode == ModeOpportunity {
		if v == 0 {
			return 0
		}
		return 1 / v
	}
	return v
}

// 文档注释：IDW 热力网格
// 背景：对 CellsPerSide×CellsPerSide 个单元中心，按 w = Σ(s_i/d_i^p) / Σ(1/d_i^p) 合成各竞品分值；距离以 IDWSmoothing 为下限，避免重合点发散。
// 约束：
// - 输出长度恒为 CellsPerSide²，行优先（由南到北、由西到东）；
// - 全网格做 min-max 归一化到 [0,100]；原始权重全部相等时一律为 0；
// - 无竞品返回空切片；视口非法返回 geo.ErrInvalidBounds；网格过大返回 ErrGridTooLarge。
func BuildGrid(bounds geo.Bounds, places []zone.Place, mode Mode, cfg GridConfig) ([]WeightedPoint, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := make([]WeightedPoint, 0)
	if len(places) == 0 {
		return out, nil
	}
	cfg = cfg.withDefaults()
	scores := make([]float64, len(places))
	for i, p := range places {
		scores[i] = Score(p, mode)
	}
	n := cfg.CellsPerSide
	raw := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := bounds.At((float64(i)+0.5)/float64(n), (float64(j)+0.5)/float64(n))
			out = append(out, WeightedPoint{Location: c})
			raw = append(raw, interpolate(c, places, scores, cfg))
		}
	}
	lo, hi := raw[0], raw[0]
	for _, v := range raw {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if span := hi - lo; span > 0 {
		for i, v := range raw {
			out[i].Weight = (v - lo) / span * 100
		}
	}
	return out, nil
}

func interpolate(c geo.LatLng, places []zone.Place, scores []float64, cfg GridConfig) float64 {
	var num, den float64
	for i, p := range places {
		d := math.Max(geo.Distance(c, p.Location), cfg.IDWSmoothing)
		w := 1 / math.Pow(d, cfg.IDWPower)
		num += scores[i] * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// CellSize 单元边长（米，取经纬两向较大者），截断到 [MinCellSize, MaxCellSize]；用作渲染半径，不影响单元数量
func CellSize(bounds geo.Bounds, cfg GridConfig) float64 {
	cfg = cfg.withDefaults()
	span := math.Max(bounds.WidthMeters(), bounds.HeightMeters())
	size := span / float64(cfg.CellsPerSide)
	return math.Min(cfg.MaxCellSize, math.Max(cfg.MinCellSize, size))
}
