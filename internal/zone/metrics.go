package zone

import (
	"math"
	"sort"
)

// ServiceGaps 各服务能力在簇内的提供者数量
type ServiceGaps struct {
	Delivery             int `json:"delivery"`
	Takeout              int `json:"takeout"`
	DineIn               int `json:"dineIn"`
	WheelchairAccessible int `json:"wheelchairAccessible"`
}

// Missing 簇内无人提供的能力
func (g ServiceGaps) Missing() []string {
	var out []string
	if g.Delivery == 0 {
		out = append(out, "delivery")
	}
	if g.Takeout == 0 {
		out = append(out, "takeout")
	}
	if g.DineIn == 0 {
		out = append(out, "dine-in")
	}
	if g.WheelchairAccessible == 0 {
		out = append(out, "wheelchair access")
	}
	return out
}

// 文档注释：簇指标
// 约束：DensityScore/StrengthScore 取整并截断到 [0,100]
type Metrics struct {
	AverageRating  float64     `json:"averageRating"`
	TotalReviews   int         `json:"totalReviews"`
	ServiceGaps    ServiceGaps `json:"serviceGaps"`
	DensityScore   int         `json:"densityScore"`
	StrengthScore  int         `json:"strengthScore"`
	TopCompetitors []Place     `json:"topCompetitors"`
}

// ComputeMetrics：对成员列表计算评分；纯函数，不修改入参
func ComputeMetrics(places []Place, radiusMeters float64, cfg Config) Metrics {
	cfg = cfg.withDefaults()
	var m Metrics
	var ratingSum float64
	rated := 0
	for _, p := range places {
		if r := p.RatingValue(); r > 0 {
			ratingSum += r
			rated++
		}
		m.TotalReviews += p.Reviews()
		if isTrue(p.Delivery) {
			m.ServiceGaps.Delivery++
		}
		if isTrue(p.Takeout) {
			m.ServiceGaps.Takeout++
		}
		if isTrue(p.DineIn) {
			m.ServiceGaps.DineIn++
		}
		if isTrue(p.WheelchairAccessible) {
			m.ServiceGaps.WheelchairAccessible++
		}
	}
	if rated > 0 {
		m.AverageRating = ratingSum / float64(rated)
	}
	m.DensityScore = DensityScore(len(places), radiusMeters, cfg.DensityFactor)
	m.StrengthScore = StrengthScore(places, cfg.StrengthCeilingRating, cfg.StrengthCeilingReviews)
	m.TopCompetitors = TopByReviews(places, cfg.TopCompetitors)
	return m
}

// DensityScore = min(100, round(count / (π·r_km²) × factor))
// 约束：半径非正时视为 0 分（构造上半径不小于下限）
func DensityScore(count int, radiusMeters, factor float64) int {
	if count <= 0 || radiusMeters <= 0 {
		return 0
	}
	rKm := radiusMeters / 1000
	perKm2 := float64(count) / (math.Pi * rKm * rKm)
	return clampScore(math.Round(perKm2 * factor))
}

// StrengthScore：rating × log10(max(reviews,1)+1) 的均值，按 ceilingRating × log10(ceilingReviews+1) 归一化到百分制
func StrengthScore(places []Place, ceilingRating float64, ceilingReviews int) int {
	if len(places) == 0 {
		return 0
	}
	var sum float64
	for _, p := range places {
		reviews := math.Max(float64(p.Reviews()), 1)
		sum += p.RatingValue() * math.Log10(reviews+1)
	}
	avg := sum / float64(len(places))
	ceiling := ceilingRating * math.Log10(float64(ceilingReviews)+1)
	if ceiling <= 0 {
		return 0
	}
	return clampScore(math.Round(avg / ceiling * 100))
}

// TopByReviews：按评论数降序取前 n 个（稳定排序，返回副本）
func TopByReviews(places []Place, n int) []Place {
	sorted := append([]Place(nil), places...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Reviews() > sorted[j].Reviews() })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func clampScore(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
