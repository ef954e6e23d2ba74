package zone

// 文档注释：聚类与评分参数
// 背景：强度阈值、半径下限与强度归一化上限都是产品调优值，统一从配置注入；零值字段回落到默认值。
type Config struct {
	ThresholdMeters        float64
	HighIntensityMin       int
	ModerateIntensityMin   int
	MinRadiusMeters        float64
	SingleSpreadMeters     float64
	RadiusFactor           float64
	DensityFactor          float64
	StrengthCeilingRating  float64
	StrengthCeilingReviews int
	TopCompetitors         int
	// IndexMinPlaces 超过该数量时改用 R-Tree 做邻居预筛
	IndexMinPlaces int
	Namer          *AreaNamer
}

const (
	DefaultThresholdMeters = 1000.0
	defaultIndexMinPlaces  = 256
)

func DefaultConfig() Config {
	return Config{
		ThresholdMeters:        DefaultThresholdMeters,
		HighIntensityMin:       4,
		ModerateIntensityMin:   2,
		MinRadiusMeters:        400,
		SingleSpreadMeters:     300,
		RadiusFactor:           1.3,
		DensityFactor:          20,
		StrengthCeilingRating:  5,
		StrengthCeilingReviews: 10000,
		TopCompetitors:         3,
		IndexMinPlaces:         defaultIndexMinPlaces,
		Namer:                  MalaysiaAreaNamer(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ThresholdMeters <= 0 {
		c.ThresholdMeters = d.ThresholdMeters
	}
	if c.HighIntensityMin <= 0 {
		c.HighIntensityMin = d.HighIntensityMin
	}
	if c.ModerateIntensityMin <= 0 {
		c.ModerateIntensityMin = d.ModerateIntensityMin
	}
	if c.MinRadiusMeters <= 0 {
		c.MinRadiusMeters = d.MinRadiusMeters
	}
	if c.SingleSpreadMeters <= 0 {
		c.SingleSpreadMeters = d.SingleSpreadMeters
	}
	if c.RadiusFactor <= 0 {
		c.RadiusFactor = d.RadiusFactor
	}
	if c.DensityFactor <= 0 {
		c.DensityFactor = d.DensityFactor
	}
	if c.StrengthCeilingRating <= 0 {
		c.StrengthCeilingRating = d.StrengthCeilingRating
	}
	if c.StrengthCeilingReviews <= 0 {
		c.StrengthCeilingReviews = d.StrengthCeilingReviews
	}
	if c.TopCompetitors <= 0 {
		c.TopCompetitors = d.TopCompetitors
	}
	if c.IndexMinPlaces <= 0 {
		c.IndexMinPlaces = d.IndexMinPlaces
	}
	if c.Namer == nil {
		c.Namer = d.Namer
	}
	return c
}
