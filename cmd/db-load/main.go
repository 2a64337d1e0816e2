// 入库工具：读取合并结果表并整体替换 PostgreSQL 中的 helipads 表
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"world-helipads/internal/config"
	"world-helipads/internal/logger"
	"world-helipads/internal/pipeline"
	"world-helipads/internal/store"
	"world-helipads/internal/table"
	"world-helipads/internal/utils"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	runID := uuid.NewString()
	l := logger.SetupRun(runID)
	cfg, err := config.FromEnv()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := (&pipeline.Pipeline{Cfg: cfg}).TablePath(pipeline.TableHelipads)
	if len(os.Args) > 1 {
		in = os.Args[1]
	}
	set, err := table.Read(ctx, in)
	if err != nil {
		l.Error("table_read_error", "path", in, "err", err)
		os.Exit(1)
	}
	db, err := utils.OpenPostgresFromEnv(ctx)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)
	defer st.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	if err := st.ReplaceHelipads(ctx, runID, set); err != nil {
		l.Error("db_load_error", "err", err)
		os.Exit(1)
	}
	counts, err := st.CountBySource(ctx)
	if err != nil {
		l.Error("db_count_error", "err", err)
		os.Exit(1)
	}
	for src, n := range counts {
		l.Info("db_load_source", "source", string(src), "rows", n)
	}
}
