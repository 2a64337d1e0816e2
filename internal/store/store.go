// 包 store：合并结果写入 PostgreSQL，供下游按坐标与来源查询
package store

import (
	"context"
	"database/sql"
	"fmt"

	"world-helipads/internal/logger"
	"world-helipads/internal/point"

	"github.com/lib/pq"
)

// BatchSize 每个事务写入的行数
const BatchSize = 5000

// Store 数据库访问入口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// batches 按 size 切分 [0, n) 区间
func batches(n, size int) [][2]int {
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// 文档注释：以新批次整体替换结果表
// 背景：结果集数量在十万级，先按 BatchSize 分批 COPY 进暂存表，降低单事务锁持有与 WAL 压力；全部写入后在一个事务内清空结果表并从暂存表切换。
// 约束：切换前失败时结果表保持旧内容；空 info_json 写为 {}；runID 记录到 helipad_runs。
func (s *Store) ReplaceHelipads(ctx context.Context, runID string, set point.Set) error {
	logger.L().Info("store_replace_begin", "run_id", runID, "rows", len(set))
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _helipads_staging WHERE run_id=$1`, runID); err != nil {
		return err
	}
	for _, b := range batches(len(set), BatchSize) {
		if err := s.copyBatch(ctx, runID, set[b[0]:b[1]]); err != nil {
			return fmt.Errorf("store: batch %d-%d: %w", b[0], b[1], err)
		}
		logger.L().Info("store_progress", "count", b[1], "total", len(set))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmts := []struct {
		q    string
		args []any
	}{
		{`TRUNCATE helipads`, nil},
		{`INSERT INTO helipads(lat, lon, source, info_json, run_id)
            SELECT lat, lon, source, info_json::jsonb, run_id FROM _helipads_staging WHERE run_id=$1`, []any{runID}},
		{`DELETE FROM _helipads_staging WHERE run_id=$1`, []any{runID}},
		{`INSERT INTO helipad_runs(run_id, rows) VALUES($1, $2)
            ON CONFLICT (run_id) DO UPDATE SET rows=EXCLUDED.rows, loaded_at=now()`, []any{runID, len(set)}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.q, st.args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("store_replace_done", "run_id", runID, "rows", len(set))
	return nil
}

func (s *Store) copyBatch(ctx context.Context, runID string, set point.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("_helipads_staging", "lat", "lon", "source", "info_json", "run_id"))
	if err != nil {
		return err
	}
	for _, r := range set {
		info := r.Info
		if info == "" {
			info = "{}"
		}
		if _, err := stmt.ExecContext(ctx, r.Lat, r.Lon, string(r.Source), info, runID); err != nil {
			stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

// CountBySource 结果表各来源行数
func (s *Store) CountBySource(ctx context.Context) (map[point.Source]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(1) FROM helipads GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[point.Source]int64{}
	for rows.Next() {
		var src string
		var n int64
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		out[point.Source(src)] = n
	}
	return out, rows.Err()
}
