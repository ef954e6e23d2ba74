package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

var stmts = []string{
	`CREATE TABLE IF NOT EXISTS gapmap_analyses (
        id UUID PRIMARY KEY,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        south DOUBLE PRECISION NOT NULL,
        west DOUBLE PRECISION NOT NULL,
        north DOUBLE PRECISION NOT NULL,
        east DOUBLE PRECISION NOT NULL,
        threshold_m DOUBLE PRECISION NOT NULL,
        place_count INT NOT NULL,
        cluster_count INT NOT NULL,
        gap_count INT NOT NULL,
        result JSONB NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_gapmap_analyses_created ON gapmap_analyses(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS gapmap_stats_daily (
        day DATE PRIMARY KEY,
        analyses BIGINT NOT NULL DEFAULT 0
    )`,
}

// 背景：首次运行自动创建所需表与索引
// 约束：使用 IF NOT EXISTS，可重复执行
func EnsureSchema(ctx context.Context, db *sqlx.DB, l *slog.Logger) error {
	for i, s := range stmts {
		l.Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema stmt %d: %w", i, err)
		}
	}
	l.Debug("schema_done")
	return nil
}
