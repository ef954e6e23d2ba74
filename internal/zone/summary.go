package zone

import (
	"fmt"
	"math"
)

// Saturation 市场饱和度
type Saturation string

const (
	SaturationSaturated   Saturation = "saturated"
	SaturationCompetitive Saturation = "competitive"
	SaturationEmerging    Saturation = "emerging"
	SaturationUntapped    Saturation = "untapped"
)

// ServiceCoverage 提供各能力的竞品占比（0-100）
type ServiceCoverage struct {
	Delivery             int `json:"delivery"`
	Takeout              int `json:"takeout"`
	DineIn               int `json:"dineIn"`
	WheelchairAccessible int `json:"wheelchairAccessible"`
}

// 文档注释：视口内市场概览
type MarketSummary struct {
	TotalPlaces     int             `json:"totalPlaces"`
	ClusterCount    int             `json:"clusterCount"`
	HighZones       int             `json:"highIntensityZones"`
	ModerateZones   int             `json:"moderateIntensityZones"`
	LowZones        int             `json:"lowIntensityZones"`
	AverageRating   float64         `json:"averageRating"`
	TotalReviews    int             `json:"totalReviews"`
	Saturation      Saturation      `json:"saturation"`
	Coverage        ServiceCoverage `json:"serviceCoverage"`
	ServiceGaps     []string        `json:"serviceGaps"`
	StrongestZone   string          `json:"strongestZone,omitempty"`
	BestOpportunity string          `json:"bestOpportunity,omitempty"`
	Recommendations []string        `json:"recommendations"`
}

// serviceGapPercent 覆盖率低于该值的能力视为市场级服务缺口
const serviceGapPercent = 50

// 文档注释：汇总簇与缺口
// 约束：
// - 饱和度：高强度簇不少于 3 个或高强度簇成员占比不低于 60% 为 saturated；存在高强度簇为 competitive；有竞品为 emerging；否则 untapped；
// - 平均评分仅统计已评分竞品，保留一位小数。
func Summarize(clusters []Cluster, gaps []GapZone) MarketSummary {
	s := MarketSummary{ClusterCount: len(clusters), ServiceGaps: []string{}, Recommendations: []string{}}
	var gapsTally ServiceGaps
	var ratingSum float64
	rated, inHigh := 0, 0
	strongest := -1
	for i, c := range clusters {
		s.TotalPlaces += c.Count
		s.TotalReviews += c.TotalReviews
		switch c.Intensity {
		case IntensityHigh:
			s.HighZones++
			inHigh += c.Count
		case IntensityModerate:
			s.ModerateZones++
		default:
			s.LowZones++
		}
		for _, p := range c.Places {
			if r := p.RatingValue(); r > 0 {
				ratingSum += r
				rated++
			}
		}
		gapsTally.Delivery += c.ServiceGaps.Delivery
		gapsTally.Takeout += c.ServiceGaps.Takeout
		gapsTally.DineIn += c.ServiceGaps.DineIn
		gapsTally.WheelchairAccessible += c.ServiceGaps.WheelchairAccessible
		if strongest < 0 || c.StrengthScore > clusters[strongest].StrengthScore {
			strongest = i
		}
	}
	if rated > 0 {
		s.AverageRating = math.Round(ratingSum/float64(rated)*10) / 10
	}
	switch {
	case s.TotalPlaces == 0:
		s.Saturation = SaturationUntapped
	case s.HighZones >= 3 || float64(inHigh) >= 0.6*float64(s.TotalPlaces):
		s.Saturation = SaturationSaturated
	case s.HighZones > 0:
		s.Saturation = SaturationCompetitive
	default:
		s.Saturation = SaturationEmerging
	}
	if s.TotalPlaces > 0 {
		s.Coverage = ServiceCoverage{
			Delivery:             percent(gapsTally.Delivery, s.TotalPlaces),
			Takeout:              percent(gapsTally.Takeout, s.TotalPlaces),
			DineIn:               percent(gapsTally.DineIn, s.TotalPlaces),
			WheelchairAccessible: percent(gapsTally.WheelchairAccessible, s.TotalPlaces),
		}
		for _, g := range []struct {
			name string
			pct  int
		}{
			{"delivery", s.Coverage.Delivery},
			{"takeout", s.Coverage.Takeout},
			{"dine-in", s.Coverage.DineIn},
			{"wheelchair access", s.Coverage.WheelchairAccessible},
		} {
			if g.pct < serviceGapPercent {
				s.ServiceGaps = append(s.ServiceGaps, g.name)
				s.Recommendations = append(s.Recommendations, fmt.Sprintf("Offer %s: only %d%% of competitors do", g.name, g.pct))
			}
		}
	}
	if strongest >= 0 {
		c := clusters[strongest]
		s.StrongestZone = c.AreaName
		if c.Intensity == IntensityHigh {
			s.Recommendations = append(s.Recommendations, fmt.Sprintf("Avoid %s: %d competitors with strength %d", c.AreaName, c.Count, c.StrengthScore))
		}
	}
	best := -1
	for i, g := range gaps {
		if best < 0 || g.OpportunityScore > gaps[best].OpportunityScore {
			best = i
		}
	}
	if best >= 0 {
		g := gaps[best]
		s.BestOpportunity = g.AreaName
		s.Recommendations = append(s.Recommendations, fmt.Sprintf("Consider %s: nearest competitor %.0fm away (opportunity %d)", g.AreaName, g.NearestDistanceMeters, g.OpportunityScore))
	}
	return s
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}
