package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// 文档注释：KD-Tree 半径查询（单位球三维坐标）
// 背景：经纬度平面上的切分在日期变更线与极区会漏检，改为在单位向量上按 x/y/z 交替切分，以弦长剪枝。
// 约束：构建后不可变；查询只读，可被多个协程并发调用。
type kdNode struct {
	e  entry
	ax int // 0:x,1:y,2:z
	l  *kdNode
	r  *kdNode
}

type kdTree struct {
	root    *kdNode
	n       int
	radiusM float64
}

func newKDTree(es []entry, earthRadiusM float64) *kdTree {
	return &kdTree{root: buildKD(es, 0), n: len(es), radiusM: earthRadiusM}
}

func buildKD(es []entry, depth int) *kdNode {
	if len(es) == 0 {
		return nil
	}
	ax := depth % 3
	// 选择中位数分割，保证树高为 O(log n)
	mid := len(es) / 2
	selectNth(es, mid, ax)
	node := &kdNode{e: es[mid], ax: ax}
	node.l = buildKD(es[:mid], depth+1)
	node.r = buildKD(es[mid+1:], depth+1)
	return node
}

// 原地 nth 元素选择（按轴分量）
// 约束：三路划分，等于枢轴的元素一次性归位；大量坐标重合（重叠瓦片、0,0 占位点）时仍为期望线性。
func selectNth(a []entry, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		lt, gt := partition3(a, lo, hi, (lo+hi)/2, ax)
		switch {
		case n < lt:
			hi = lt - 1
		case n > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

// partition3 划分后 a[lo:lt] 小于枢轴，a[lt:gt+1] 等于枢轴，a[gt+1:hi+1] 大于枢轴
func partition3(a []entry, lo, hi, pivot, ax int) (lt, gt int) {
	pv := a[pivot].v[ax]
	lt, gt = lo, hi
	for i := lo; i <= gt; {
		switch c := a[i].v[ax]; {
		case c < pv:
			a[lt], a[i] = a[i], a[lt]
			lt++
			i++
		case c > pv:
			a[i], a[gt] = a[gt], a[i]
			gt--
		default:
			i++
		}
	}
	return lt, gt
}

func (t *kdTree) Len() int { return t.n }

func (t *kdTree) QueryRadius(p orb.Point, radiusM float64) []int {
	if t.root == nil || radiusM < 0 || math.IsNaN(radiusM) {
		return nil
	}
	q := newEntry(-1, p)
	chord := chordFor(radiusM, t.radiusM)
	var out []int
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		if within(q, n.e, radiusM, t.radiusM) {
			out = append(out, n.e.idx)
		}
		key := q.v[n.ax]
		split := n.e.v[n.ax]
		first, second := n.l, n.r
		if key >= split {
			first, second = n.r, n.l
		}
		dfs(first)
		// 仅当分割平面到查询点的距离不超过弦长时才遍历另一侧
		if math.Abs(key-split) <= chord {
			dfs(second)
		}
	}
	dfs(t.root)
	return out
}
