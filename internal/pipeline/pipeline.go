// 包 pipeline：批次阶段编排（获取 → 合并 → 导出 / 入库），供各命令行入口共享
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"world-helipads/internal/bucket"
	"world-helipads/internal/config"
	"world-helipads/internal/dedupe"
	"world-helipads/internal/enrich"
	"world-helipads/internal/export"
	"world-helipads/internal/logger"
	"world-helipads/internal/openaip"
	"world-helipads/internal/osm"
	"world-helipads/internal/point"
	"world-helipads/internal/table"
	"world-helipads/internal/utils"
)

// 阶段名称
const (
	StageRetrieve = "retrieve"
	StageMerge    = "merge"
	StageExport   = "export"
)

// 中间表基名（不含扩展名）
const (
	TableOpenAIP   = "openaip_transformed"
	TableOSMHeli   = "osm_heli"
	TableHospitals = "osm_hospital"
	TableOffshore  = "osm_offshore"
	TableHelipads  = "helipads"
)

// Pipeline 一次批次运行的上下文；外部依赖可替换以便测试
type Pipeline struct {
	Cfg      config.Config
	RunID    string
	Objects  bucket.ObjectStore
	Overpass osm.Querier
}

// 文档注释：按配置构建默认依赖
// 背景：航空点位来自公开存储桶，地图数据来自 Overpass；启用 REDIS_ENABLE 时 Overpass 响应经 Redis 缓存，跨进程重跑可复用。
func New(ctx context.Context, cfg config.Config, runID string) (*Pipeline, error) {
	objs, err := bucket.NewS3Store(ctx, cfg.BucketEndpoint, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	client := osm.NewClient(cfg.OverpassURL, cfg.OverpassRatePerMin, time.Duration(cfg.OverpassTimeoutSec)*time.Second)
	client.Retries = cfg.OverpassRetries
	if cfg.RedisCache {
		rdb, err := utils.OpenRedisFromEnv()
		if err != nil {
			return nil, err
		}
		client.Cache = &osm.RedisCache{RDB: rdb, TTL: 7 * 24 * time.Hour}
	}
	return &Pipeline{Cfg: cfg, RunID: runID, Objects: objs, Overpass: client}, nil
}

// TablePath 中间表路径（.parquet）
func (p *Pipeline) TablePath(name string) string {
	return filepath.Join(p.Cfg.IntermediateDir, name+".parquet")
}

func (p *Pipeline) osmDir(kind osm.Kind) string {
	return filepath.Join(p.Cfg.OSMDir, string(kind))
}

func (p *Pipeline) dedupeOptions(radiusM float64) dedupe.Options {
	return dedupe.Options{
		ThresholdM:   radiusM,
		EarthRadiusM: p.Cfg.EarthRadiusM,
		Backend:      p.Cfg.IndexBackend,
		Workers:      p.Cfg.Workers,
	}
}

// 文档注释：获取阶段
// 背景：镜像存储桶中的航空点位文件，再按瓦片下载直升机坪、医院、海上平台三类地图数据；已存在的文件跳过。
// 约束：各数据集独立执行，任一失败不阻止其它数据集，结束后合并返回全部错误；ctx 取消时立即返回。
func (p *Pipeline) Retrieve(ctx context.Context) error {
	l := logger.L()
	l.Info("stage_begin", "stage", StageRetrieve)
	var errs []error
	if _, err := bucket.Mirror(ctx, p.Objects, p.Cfg.BucketSuffix, p.Cfg.OpenAIPDir, bucket.MirrorOptions{
		Workers: p.Cfg.BucketWorkers, Retries: 3, Backoff: time.Second,
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, err)
	}
	tiles := osm.WorldTiles(p.Cfg.LatDivisions, p.Cfg.LonDivisions)
	queries := []struct {
		kind osm.Kind
		tmpl string
	}{
		{osm.KindHelipad, p.Cfg.HeliQuery},
		{osm.KindHospital, p.Cfg.HospitalQuery},
		{osm.KindOffshore, p.Cfg.OffshoreQuery},
	}
	for _, q := range queries {
		if _, err := osm.Download(ctx, p.Overpass, tiles, q.tmpl, p.osmDir(q.kind), p.Cfg.OverpassWorkers); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	l.Info("stage_done", "stage", StageRetrieve, "errors", len(errs))
	return errors.Join(errs...)
}

// 文档注释：合并阶段
// 流程：过滤航空点位 → 转换航空点位 → 转换地图直升机坪 → 邻近去重合并 → 场所标注（对应下载目录存在时）→ 写出 helipads 表。
// 约束：每一步的输出都写成表对，便于单独排查；任一步失败整体返回错误。
func (p *Pipeline) Merge(ctx context.Context) (point.Set, error) {
	l := logger.L()
	l.Info("stage_begin", "stage", StageMerge)
	filtered := filepath.Join(p.Cfg.IntermediateDir, "openaip_filtered")
	if _, err := openaip.FilterFiles(p.Cfg.OpenAIPDir, filtered); err != nil {
		return nil, err
	}
	ref, err := openaip.TransformDir(filtered)
	if err != nil {
		return nil, err
	}
	if err := table.WritePair(p.TablePath(TableOpenAIP), ref); err != nil {
		return nil, err
	}
	cand, err := osm.TransformDir(p.osmDir(osm.KindHelipad), osm.KindHelipad)
	if err != nil {
		return nil, err
	}
	if err := table.WritePair(p.TablePath(TableOSMHeli), cand); err != nil {
		return nil, err
	}
	merged, st, err := dedupe.Merge(ctx, ref, cand, p.dedupeOptions(p.Cfg.DuplicateRadiusM))
	if err != nil {
		return nil, err
	}
	sites := []struct {
		kind   osm.Kind
		table  string
		label  string
		radius float64
	}{
		{osm.KindHospital, TableHospitals, enrich.SiteHospital, p.Cfg.HospitalRadiusM},
		{osm.KindOffshore, TableOffshore, enrich.SiteOffshore, p.Cfg.OffshoreRadiusM},
	}
	for _, s := range sites {
		dir := p.osmDir(s.kind)
		if _, err := os.Stat(dir); err != nil {
			l.Info("enrich_skip", "site", s.label, "dir", dir)
			continue
		}
		pts, err := osm.TransformDir(dir, s.kind)
		if err != nil {
			return nil, err
		}
		if err := table.WritePair(p.TablePath(s.table), pts); err != nil {
			return nil, err
		}
		merged, _, err = enrich.TagSites(ctx, merged, pts, s.label, p.dedupeOptions(s.radius))
		if err != nil {
			return nil, err
		}
	}
	if err := table.WritePair(p.TablePath(TableHelipads), merged); err != nil {
		return nil, err
	}
	l.Info("stage_done", "stage", StageMerge, "openaip", st.Reference, "osm", st.Candidates, "matched", st.Matched, "output", st.Output)
	return merged, nil
}

// 文档注释：导出阶段
// 背景：读取 helipads 表并按经度分区写出导航软件导入文件。
func (p *Pipeline) Export(ctx context.Context) (map[string]int, error) {
	logger.L().Info("stage_begin", "stage", StageExport)
	set, err := table.Read(ctx, p.TablePath(TableHelipads))
	if err != nil {
		return nil, err
	}
	counts, err := export.Write(set, p.Cfg.Regions, p.Cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	logger.L().Info("stage_done", "stage", StageExport, "rows", len(set), "regions", len(counts))
	return counts, nil
}

// Run 依次执行指定阶段；未知阶段名返回错误
func (p *Pipeline) Run(ctx context.Context, stages []string) error {
	for _, s := range stages {
		var err error
		switch s {
		case StageRetrieve:
			err = p.Retrieve(ctx)
		case StageMerge:
			_, err = p.Merge(ctx)
		case StageExport:
			_, err = p.Export(ctx)
		default:
			err = fmt.Errorf("pipeline: unknown stage %q", s)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}
