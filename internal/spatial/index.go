// 包 spatial：静态半径查询索引（Haversine 度量），构建一次后只读，可并发查询
package spatial

import (
	"fmt"
	"math"

	"world-helipads/internal/geo"

	"github.com/paulmach/orb"
)

// 文档注释：半径查询索引（统一契约）
// 背景：分类器只依赖 QueryRadius，后端可在 kd-tree 与 R-Tree 之间切换而不影响调用方。
// 约束：返回构建时点集中的下标；不保证顺序；必须返回全部真实命中（无漏检）。
type Index interface {
	Len() int
	QueryRadius(p orb.Point, radiusM float64) []int
}

// 支持的索引后端
const (
	BackendKDTree = "kdtree"
	BackendRTree  = "rtree"
)

// 文档注释：按后端名称构建索引
// 背景：点集先转换为弧度与单位球坐标，后端只在三维空间里做弦长剪枝，最终以球面距离确认。
// 约束：空点集返回不命中任何点的索引而非错误；earthRadiusM 必须为正。
func Build(backend string, pts []orb.Point, earthRadiusM float64) (Index, error) {
	if earthRadiusM <= 0 || math.IsNaN(earthRadiusM) {
		return nil, fmt.Errorf("spatial: invalid earth radius %v", earthRadiusM)
	}
	if backend == "" {
		backend = BackendKDTree
	}
	if backend != BackendKDTree && backend != BackendRTree {
		return nil, fmt.Errorf("spatial: unknown backend %q", backend)
	}
	if len(pts) == 0 {
		return emptyIndex{}, nil
	}
	es := make([]entry, len(pts))
	for i, p := range pts {
		es[i] = newEntry(i, p)
	}
	if backend == BackendRTree {
		return newRTree(es, earthRadiusM), nil
	}
	return newKDTree(es, earthRadiusM), nil
}

// entry：索引项，保存原始下标、弧度坐标与单位向量
type entry struct {
	idx int
	lat float64
	lon float64
	v   [3]float64
}

func newEntry(idx int, p orb.Point) entry {
	lat := geo.Radians(p.Lat())
	lon := geo.Radians(p.Lon())
	return entry{idx: idx, lat: lat, lon: lon, v: unitVector(lat, lon)}
}

func unitVector(lat, lon float64) [3]float64 {
	cl := math.Cos(lat)
	return [3]float64{cl * math.Cos(lon), cl * math.Sin(lon), math.Sin(lat)}
}

// 弦长容差：吸收单位向量计算的舍入误差，避免边界点被剪枝
const chordSlack = 1e-9

// 文档注释：半径（米）对应的单位球弦长
// 背景：弦长随圆心角单调递增，三维欧氏剪枝不会遗漏球面上的真实命中；极区与日期变更线无需特殊处理。
func chordFor(radiusM, earthRadiusM float64) float64 {
	theta := radiusM / earthRadiusM
	if theta >= math.Pi {
		return 2 + chordSlack
	}
	return 2*math.Sin(theta/2) + chordSlack
}

// 球面距离确认：以米比较，与 geo.Distance 的计算路径一致
func within(q, e entry, radiusM, earthRadiusM float64) bool {
	return earthRadiusM*geo.AngleRad(q.lat, q.lon, e.lat, e.lon) <= radiusM
}

// emptyIndex：空点集索引，任何查询均无命中
type emptyIndex struct{}

func (emptyIndex) Len() int                             { return 0 }
func (emptyIndex) QueryRadius(orb.Point, float64) []int { return nil }
