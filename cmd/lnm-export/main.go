// 导出工具：读取合并结果表（默认 intermediate/helipads.parquet，可传入其它 .parquet/.csv 路径），按经度分区写出导航软件导入文件
package main

import (
	"context"
	"os"

	"world-helipads/internal/config"
	"world-helipads/internal/export"
	"world-helipads/internal/logger"
	"world-helipads/internal/pipeline"
	"world-helipads/internal/table"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	l := logger.SetupRun(uuid.NewString())
	cfg, err := config.FromEnv()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	p := &pipeline.Pipeline{Cfg: cfg}
	in := p.TablePath(pipeline.TableHelipads)
	if len(os.Args) > 1 {
		in = os.Args[1]
	}
	set, err := table.Read(context.Background(), in)
	if err != nil {
		l.Error("table_read_error", "path", in, "err", err)
		os.Exit(1)
	}
	counts, err := export.Write(set, cfg.Regions, cfg.ExportDir)
	if err != nil {
		l.Error("export_error", "err", err)
		os.Exit(1)
	}
	for region, n := range counts {
		l.Info("export_region", "region", region, "rows", n, "file", export.FileName(region))
	}
}
