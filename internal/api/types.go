package api

import (
	"encoding/json"
	"time"

	"gapmap/internal/geo"
	"gapmap/internal/heatmap"
	"gapmap/internal/zone"

	"github.com/google/uuid"
)

// 文档注释：请求与响应模型（对外）
// 约束：字段名与前端约定一致，新增字段需评估兼容性。
type analyzeRequest struct {
	Places          []zone.Place `json:"places"`
	Bounds          geo.Bounds   `json:"bounds"`
	ThresholdMeters float64      `json:"thresholdMeters,omitempty"`
	TopN            int          `json:"topN,omitempty"`
}

type analyzeResponse struct {
	ID       *uuid.UUID         `json:"id,omitempty"`
	Clusters []zone.Cluster     `json:"clusters"`
	Gaps     []zone.GapZone     `json:"gaps"`
	Summary  zone.MarketSummary `json:"summary"`
	Message  string             `json:"message,omitempty"`
}

type heatmapRequest struct {
	Places []zone.Place        `json:"places"`
	Bounds geo.Bounds          `json:"bounds"`
	Mode   string              `json:"mode,omitempty"`
	Grid   *heatmap.GridConfig `json:"grid,omitempty"`
}

type heatmapResponse struct {
	Mode           heatmap.Mode            `json:"mode"`
	CellSizeMeters float64                 `json:"cellSizeMeters"`
	Points         []heatmap.WeightedPoint `json:"points"`
}

type searchRequest struct {
	Bounds          geo.Bounds `json:"bounds"`
	Keyword         string     `json:"keyword"`
	Limit           int        `json:"limit,omitempty"`
	ThresholdMeters float64    `json:"thresholdMeters,omitempty"`
	TopN            int        `json:"topN,omitempty"`
}

type searchResponse struct {
	Places []zone.Place `json:"places"`
	analyzeResponse
}

type analysisResponse struct {
	ID              uuid.UUID       `json:"id"`
	CreatedAt       time.Time       `json:"createdAt"`
	Bounds          geo.Bounds      `json:"bounds"`
	ThresholdMeters float64         `json:"thresholdMeters"`
	PlaceCount      int             `json:"placeCount"`
	Result          json.RawMessage `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}
