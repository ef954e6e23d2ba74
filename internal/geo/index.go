package geo

import "math"

// 文档注释：KD-Tree 最近邻索引（二维经纬）
// 背景：缺口搜索需要对数百个网格点求最近竞品；构建一次后每次查询近似 O(log n)，结果与线性扫描一致。
// 约束：按经度/纬度交替分割；剪枝使用球面上到分割线（及 ±180° 经线）的最短距离，保证不漏掉真实最近点。
type Index struct {
	root *kdNode
	size int
}

type kdNode struct {
	p   LatLng
	idx int
	ax  int // 0:lng,1:lat
	l   *kdNode
	r   *kdNode
}

type kdItem struct {
	p   LatLng
	idx int
}

// NewIndex：以 points 的下标作为返回值构建索引，不修改入参
func NewIndex(points []LatLng) *Index {
	items := make([]kdItem, len(points))
	for i, p := range points {
		items[i] = kdItem{p: p, idx: i}
	}
	return &Index{root: buildKD(items, 0), size: len(points)}
}

func (ix *Index) Len() int { return ix.size }

func buildKD(items []kdItem, depth int) *kdNode {
	if len(items) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(items) / 2
	selectNth(items, mid, ax)
	n := &kdNode{p: items[mid].p, idx: items[mid].idx, ax: ax}
	n.l = buildKD(items[:mid], depth+1)
	n.r = buildKD(items[mid+1:], depth+1)
	return n
}

// 原地 nth 元素选择
func selectNth(a []kdItem, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []kdItem, lo, hi, pivot, ax int) int {
	pv := a[pivot]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if less(a[j], pv, ax) {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func less(x, y kdItem, ax int) bool {
	if ax == 0 {
		if x.p.Lng != y.p.Lng {
			return x.p.Lng < y.p.Lng
		}
		return x.idx < y.idx
	}
	if x.p.Lat != y.p.Lat {
		return x.p.Lat < y.p.Lat
	}
	return x.idx < y.idx
}

// Nearest：返回最近点下标与距离（米）；索引为空时 ok=false
// 约束：距离相等时取下标较小者，与按下标顺序的线性扫描结果一致
func (ix *Index) Nearest(q LatLng) (idx int, dist float64, ok bool) {
	if ix == nil || ix.root == nil {
		return -1, 0, false
	}
	best := -1
	bestD := math.MaxFloat64
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		d := Distance(q, n.p)
		if d < bestD || (d == bestD && n.idx < best) {
			bestD = d
			best = n.idx
		}
		var key, split float64
		if n.ax == 0 {
			key, split = q.Lng, n.p.Lng
		} else {
			key, split = q.Lat, n.p.Lat
		}
		first, second := n.l, n.r
		if key > split {
			first, second = n.r, n.l
		}
		dfs(first)
		if planeDistance(q, n.ax, split) <= bestD {
			dfs(second)
		}
	}
	dfs(ix.root)
	return best, bestD, true
}

// planeDistance：查询点到分割线另一侧区域的最短球面距离下界
// 约束：经度分割的另一侧同时以 ±180° 经线为界，下界取两条经线中较近者，跨日界线的点不会被剪掉
func planeDistance(q LatLng, ax int, split float64) float64 {
	if ax == 1 {
		return EarthRadiusMeters * toRad(math.Abs(q.Lat-split))
	}
	return math.Min(meridianDistance(q, math.Abs(q.Lng-split)), meridianDistance(q, 180-math.Abs(q.Lng)))
}

// meridianDistance：到经度差为 dLng 的经线所在大圆的距离；dLng≥90 时退化为 0
func meridianDistance(q LatLng, dLng float64) float64 {
	if dLng >= 90 {
		return 0
	}
	x := math.Cos(toRad(q.Lat)) * math.Sin(toRad(dLng))
	return EarthRadiusMeters * math.Asin(math.Min(1, x))
}
