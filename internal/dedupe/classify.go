// 包 dedupe：两源点集的邻近判定与合并（主来源优先）
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"world-helipads/internal/geo"
	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/point"
	"world-helipads/internal/spatial"

	"golang.org/x/sync/errgroup"
)

// DefaultThresholdM 判定重复的默认距离（米）
const DefaultThresholdM = 50.0

// 进度回调与日志的步长
const (
	progressEvery = 1000
	logEvery      = 5000
)

// 文档注释：分类参数（显式传入，不读取全局状态）
// 背景：同一进程可并行执行不同阈值的合并任务，参数随调用传递避免相互影响。
// 约束：ThresholdM 必须为非负有限值；EarthRadiusM 为 0 时使用 geo.EarthRadiusM；Workers<=1 为单协程。
type Options struct {
	ThresholdM   float64
	EarthRadiusM float64
	Backend      string
	Workers      int
	// Progress 进度旁路通道（已处理参考点数/总数）；可能被多个协程串行调用
	Progress func(done, total int)
}

// DefaultOptions 默认参数：50 米阈值、kd-tree 后端、单协程
func DefaultOptions() Options {
	return Options{ThresholdM: DefaultThresholdM, EarthRadiusM: geo.EarthRadiusM, Backend: spatial.BackendKDTree, Workers: 1}
}

func (o Options) normalized() (Options, error) {
	if math.IsNaN(o.ThresholdM) || math.IsInf(o.ThresholdM, 0) || o.ThresholdM < 0 {
		return o, fmt.Errorf("dedupe: invalid threshold %v", o.ThresholdM)
	}
	if o.EarthRadiusM == 0 {
		o.EarthRadiusM = geo.EarthRadiusM
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o, nil
}

// MalformedPointError 坐标缺失或非法的记录；整个批次失败，不做逐条跳过
type MalformedPointError struct {
	Set   string // "reference" 或 "candidate"
	Index int
	Lat   float64
	Lon   float64
}

func (e *MalformedPointError) Error() string {
	return fmt.Sprintf("dedupe: malformed %s point #%d (lat=%v, lon=%v)", e.Set, e.Index, e.Lat, e.Lon)
}

// IsMalformed 判定错误链中是否包含 MalformedPointError
func IsMalformed(err error) bool {
	var m *MalformedPointError
	return errors.As(err, &m)
}

func validate(name string, s point.Set) error {
	for i, r := range s {
		if !r.Valid() {
			return &MalformedPointError{Set: name, Index: i, Lat: r.Lat, Lon: r.Lon}
		}
	}
	return nil
}

// Matches 候选点匹配标记，与候选点集下标一一对应
type Matches []bool

// Count 已匹配数量
func (m Matches) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// 文档注释：邻近判定
// 背景：在候选集 cand 上构建一次索引，逐个参考点做半径查询，命中的候选点标记为已匹配；参考点按协程分片，分片结果按位或归并。
// 返回：长度等于 len(cand) 的新标记切片；输入点集不被修改。
// 约束：任一记录坐标非法时返回 MalformedPointError 且不返回部分结果；ctx 取消时在查询之间中止。
// 参考集为空时全部未匹配（正常生产场景，不视为错误）。
func Classify(ctx context.Context, ref, cand point.Set, opts Options) (Matches, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if err := validate("reference", ref); err != nil {
		return nil, err
	}
	if err := validate("candidate", cand); err != nil {
		return nil, err
	}
	out := make(Matches, len(cand))
	if len(ref) == 0 || len(cand) == 0 {
		reportProgress(opts.Progress, len(ref), len(ref))
		return out, nil
	}
	t0 := time.Now()
	idx, err := spatial.Build(opts.Backend, cand.Points(), opts.EarthRadiusM)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers > len(ref) {
		workers = len(ref)
	}
	l := logger.L()
	l.Debug("classify_begin", "reference", len(ref), "candidates", len(cand), "threshold_m", opts.ThresholdM, "backend", opts.Backend, "workers", workers)

	var done atomic.Int64
	var progMu sync.Mutex
	shards := make([]Matches, workers)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(ref) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(ref) {
			hi = len(ref)
		}
		shard := make(Matches, len(cand))
		shards[w] = shard
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, j := range idx.QueryRadius(ref[i].Point(), opts.ThresholdM) {
					shard[j] = true
				}
				metrics.ClassifierQueriesTotal.Inc()
				n := done.Add(1)
				if n%progressEvery == 0 && opts.Progress != nil {
					progMu.Lock()
					opts.Progress(int(n), len(ref))
					progMu.Unlock()
				}
				if n%logEvery == 0 {
					l.Info("classify_progress", "done", n, "total", len(ref))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, shard := range shards {
		for j, v := range shard {
			if v {
				out[j] = true
			}
		}
	}
	reportProgress(opts.Progress, len(ref), len(ref))
	matched := out.Count()
	metrics.ClassifierMatchedTotal.Add(float64(matched))
	metrics.ClassifierDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	l.Info("classify_done", "reference", len(ref), "candidates", len(cand), "matched", matched, "duration_ms", time.Since(t0).Milliseconds())
	return out, nil
}

func reportProgress(fn func(done, total int), done, total int) {
	if fn != nil {
		fn(done, total)
	}
}
