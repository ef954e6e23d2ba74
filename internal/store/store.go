// 包 store: PostgreSQL 数据访问层，保存分析结果并维护按日统计
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound 分析记录不存在
var ErrNotFound = errors.New("store: not found")

// Store: 数据库访问入口，持有连接池
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// AttachDB: 复用已打开的连接（driverName 一般为 postgres）
func AttachDB(db *sql.DB, driverName string, l *slog.Logger) *Store {
	if l == nil {
		l = slog.Default()
	}
	return &Store{db: sqlx.NewDb(db, driverName), logger: l}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sqlx.DB { return s.db }

// AnalysisRecord 一次分析的持久化形态；Result 为完整结果 JSON
type AnalysisRecord struct {
	ID              uuid.UUID `db:"id"`
	CreatedAt       time.Time `db:"created_at"`
	South           float64   `db:"south"`
	West            float64   `db:"west"`
	North           float64   `db:"north"`
	East            float64   `db:"east"`
	ThresholdMeters float64   `db:"threshold_m"`
	PlaceCount      int       `db:"place_count"`
	ClusterCount    int       `db:"cluster_count"`
	GapCount        int       `db:"gap_count"`
	Result          []byte    `db:"result"`
}

// AnalysisSummary 列表页使用，不含结果正文
type AnalysisSummary struct {
	ID              uuid.UUID `db:"id" json:"id"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	South           float64   `db:"south" json:"south"`
	West            float64   `db:"west" json:"west"`
	North           float64   `db:"north" json:"north"`
	East            float64   `db:"east" json:"east"`
	ThresholdMeters float64   `db:"threshold_m" json:"thresholdMeters"`
	PlaceCount      int       `db:"place_count" json:"placeCount"`
	ClusterCount    int       `db:"cluster_count" json:"clusterCount"`
	GapCount        int       `db:"gap_count" json:"gapCount"`
}

// SaveAnalysis: ID 为空时生成；CreatedAt 以数据库回写为准
func (s *Store) SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := s.db.QueryRowxContext(ctx, `INSERT INTO gapmap_analyses
        (id, south, west, north, east, threshold_m, place_count, cluster_count, gap_count, result)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at`,
		rec.ID, rec.South, rec.West, rec.North, rec.East, rec.ThresholdMeters,
		rec.PlaceCount, rec.ClusterCount, rec.GapCount, rec.Result,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	s.logger.Debug("analysis_saved", "id", rec.ID, "clusters", rec.ClusterCount, "gaps", rec.GapCount)
	return nil
}

// GetAnalysis: 不存在返回 ErrNotFound
func (s *Store) GetAnalysis(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	var rec AnalysisRecord
	err := s.db.GetContext(ctx, &rec, `SELECT id, created_at, south, west, north, east, threshold_m,
        place_count, cluster_count, gap_count, result
        FROM gapmap_analyses WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &rec, nil
}

// ListAnalyses: 按创建时间倒序；limit 取值 1..100，越界回落到 20
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]AnalysisSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out := []AnalysisSummary{}
	err := s.db.SelectContext(ctx, &out, `SELECT id, created_at, south, west, north, east, threshold_m,
        place_count, cluster_count, gap_count
        FROM gapmap_analyses ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return out, nil
}

// IncrStats: 当日分析计数 +1
func (s *Store) IncrStats(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO gapmap_stats_daily(day, analyses) VALUES(current_date, 1)
        ON CONFLICT (day) DO UPDATE SET analyses=gapmap_stats_daily.analyses+1`)
	if err != nil {
		return fmt.Errorf("incr stats: %w", err)
	}
	return nil
}

// Totals: 累计与当日分析次数
type Totals struct {
	Total int64 `db:"total" json:"total"`
	Today int64 `db:"today" json:"today"`
}

func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	err := s.db.GetContext(ctx, &t, `SELECT
        COALESCE(SUM(analyses), 0) AS total,
        COALESCE(SUM(analyses) FILTER (WHERE day = current_date), 0) AS today
        FROM gapmap_stats_daily`)
	if err != nil {
		return nil, fmt.Errorf("get totals: %w", err)
	}
	s.logger.Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}
