package store

import (
	"context"
	"database/sql"

	"world-helipads/internal/logger"
)

// 文档注释：建表
// 背景：首次导入时自动创建结果表、暂存表与批次记录表，保障后续导入与查询
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS helipads (
            id BIGSERIAL PRIMARY KEY,
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            source TEXT NOT NULL,
            info_json JSONB NOT NULL DEFAULT '{}'::jsonb,
            run_id TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_helipads_lat_lon ON helipads(lat, lon)`,
		`CREATE INDEX IF NOT EXISTS idx_helipads_source ON helipads(source)`,
		`CREATE TABLE IF NOT EXISTS _helipads_staging (
            lat DOUBLE PRECISION NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            source TEXT NOT NULL,
            info_json TEXT NOT NULL,
            run_id TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS helipad_runs (
            run_id TEXT PRIMARY KEY,
            rows BIGINT NOT NULL,
            loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
