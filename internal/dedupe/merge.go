package dedupe

import (
	"context"

	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/point"
)

// Stats 一次合并的计数
type Stats struct {
	Reference       int
	Candidates      int
	Matched         int
	ExactDuplicates int
	Output          int
}

// 文档注释：合并两源点集（主来源优先）
// 背景：主来源 ref 视为更可信的整理数据，全部保留且保持原顺序；候选集 cand 仅保留阈值内无主来源点的记录，不做字段级融合。
// 流程：邻近判定 → ref 全量 + cand 未匹配项 → 精确坐标去重（保留首次出现）。
// 约束：输出为新点集，输入不被修改；相同输入多次执行结果一致；任一步失败整体返回错误。
func Merge(ctx context.Context, ref, cand point.Set, opts Options) (point.Set, Stats, error) {
	st := Stats{Reference: len(ref), Candidates: len(cand)}
	matches, err := Classify(ctx, ref, cand, opts)
	if err != nil {
		return nil, st, err
	}
	combined := make(point.Set, 0, len(ref)+len(cand))
	combined = append(combined, ref...)
	for i, r := range cand {
		if matches[i] {
			st.Matched++
			continue
		}
		combined = append(combined, r)
	}
	out := DedupeExact(combined)
	st.ExactDuplicates = len(combined) - len(out)
	st.Output = len(out)
	metrics.MergeOutputPoints.Set(float64(st.Output))
	metrics.MergeExactDuplicatesTotal.Add(float64(st.ExactDuplicates))
	logger.L().Info("merge_done",
		"reference", st.Reference,
		"candidates", st.Candidates,
		"matched", st.Matched,
		"exact_duplicates", st.ExactDuplicates,
		"output", st.Output,
	)
	return out, st, nil
}

type coordKey struct{ lat, lon float64 }

// 文档注释：精确坐标去重
// 背景：相邻查询瓦片可能返回同一要素，未匹配的候选点之间仍可能完全重合；按 (lat, lon) 完全相等判定，保留首次出现。
func DedupeExact(in point.Set) point.Set {
	seen := make(map[coordKey]struct{}, len(in))
	out := make(point.Set, 0, len(in))
	for _, r := range in {
		k := coordKey{r.Lat, r.Lon}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
