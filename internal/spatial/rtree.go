package spatial

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// 文档注释：R-Tree 半径查询（rtreego 批量构建）
// 背景：作为 kd-tree 的可替换后端；以弦长为半边长的立方体做相交检索，再逐项做球面距离确认。
type rtreeItem struct {
	rect rtreego.Rect
	e    entry
}

func (it *rtreeItem) Bounds() rtreego.Rect { return it.rect }

// 点项包围盒的半边长
const pointTol = 1e-12

type rTree struct {
	tree    *rtreego.Rtree
	n       int
	radiusM float64
}

func newRTree(es []entry, earthRadiusM float64) *rTree {
	objs := make([]rtreego.Spatial, len(es))
	for i := range es {
		objs[i] = &rtreeItem{rect: toPoint(es[i].v).ToRect(pointTol), e: es[i]}
	}
	return &rTree{tree: rtreego.NewTree(3, 25, 50, objs...), n: len(es), radiusM: earthRadiusM}
}

func toPoint(v [3]float64) rtreego.Point { return rtreego.Point{v[0], v[1], v[2]} }

func (t *rTree) Len() int { return t.n }

func (t *rTree) QueryRadius(p orb.Point, radiusM float64) []int {
	if radiusM < 0 || math.IsNaN(radiusM) {
		return nil
	}
	q := newEntry(-1, p)
	box := toPoint(q.v).ToRect(chordFor(radiusM, t.radiusM))
	var out []int
	for _, s := range t.tree.SearchIntersect(box) {
		it := s.(*rtreeItem)
		if within(q, it.e, radiusM, t.radiusM) {
			out = append(out, it.e.idx)
		}
	}
	return out
}
