// 程序入口：读取配置并按顺序执行批次阶段（retrieve、merge、export）；阶段实现位于 internal/pipeline
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"world-helipads/internal/config"
	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/pipeline"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// 用法：main [--env file.env] [stage ...]；未指定阶段时执行全部，也可通过 PIPELINE_STAGES 以逗号分隔指定
func parseArgs(args []string) (envFile string, stages []string) {
	for i := 0; i < len(args); i++ {
		if args[i] == "--env" && i+1 < len(args) {
			envFile = args[i+1]
			i++
		} else if strings.HasSuffix(args[i], ".env") {
			envFile = args[i]
		} else {
			stages = append(stages, args[i])
		}
	}
	return envFile, stages
}

func main() {
	envFile, stages := parseArgs(os.Args[1:])
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	runID := uuid.NewString()
	l := logger.SetupRun(runID)
	if len(stages) == 0 {
		if v := os.Getenv("PIPELINE_STAGES"); v != "" {
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					stages = append(stages, s)
				}
			}
		} else {
			stages = []string{pipeline.StageRetrieve, pipeline.StageMerge, pipeline.StageExport}
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Info("run_start", "stages", strings.Join(stages, ","), "duplicate_radius_m", cfg.DuplicateRadiusM, "backend", cfg.IndexBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv := metrics.Serve(cfg.MetricsAddr, l)

	p, err := pipeline.New(ctx, cfg, runID)
	if err == nil {
		err = p.Run(ctx, stages)
	}
	if perr := metrics.Push(cfg.PushgatewayURL, "world_helipads"); perr != nil {
		l.Warn("metrics_push_error", "err", perr)
	}
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	}
	if err != nil {
		l.Error("run_error", "err", err)
		os.Exit(1)
	}
	l.Info("run_done")
}
