// 包 enrich：按邻近关系为直升机坪标注所属场所（医院、海上平台）
package enrich

import (
	"context"
	"fmt"

	"world-helipads/internal/dedupe"
	"world-helipads/internal/logger"
	"world-helipads/internal/point"
)

// 场所标签，写入属性包 site 字段
const (
	SiteHospital = "Hospital"
	SiteOffshore = "Offshore platform"
)

// 文档注释：场所标注
// 背景：复用邻近判定，场所点作为参考集、直升机坪作为候选集；opts.ThresholdM 内存在场所的直升机坪追加 site 字段。
// 返回：与 helipads 等长、顺序一致的新点集与命中数量；未命中的记录原样复制。
// 约束：已带 site 字段的记录保留原值，先标注的场所优先；属性包无法解析时返回错误。
func TagSites(ctx context.Context, helipads, sites point.Set, label string, opts dedupe.Options) (point.Set, int, error) {
	matches, err := dedupe.Classify(ctx, sites, helipads, opts)
	if err != nil {
		return nil, 0, err
	}
	out := helipads.Clone()
	tagged := 0
	for i, m := range matches {
		if !m {
			continue
		}
		info, err := point.ParseInfo(out[i].Info)
		if err != nil {
			return nil, 0, fmt.Errorf("enrich: record %d: %w", i, err)
		}
		if info.Has("site") {
			continue
		}
		out[i].Info = info.With(point.String("site", label)).Encode()
		tagged++
	}
	logger.L().Info("enrich_done", "site", label, "helipads", len(helipads), "sites", len(sites), "radius_m", opts.ThresholdM, "tagged", tagged)
	return out, tagged, nil
}
