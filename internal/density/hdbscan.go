package density

import (
	"math"
	"sort"

	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// maxLambda caps 1/distance for coincident points so stabilities stay finite.
const maxLambda = 1e12

// HDBSCAN is hierarchical density-based clustering. It builds the
// single-linkage tree of the mutual-reachability graph, condenses it at
// MinClusterSize and selects the most stable clusters.
type HDBSCAN struct {
	MinClusterSize int
	MinSamples     int
	Selection      string // config.SelectionEOM or config.SelectionLeaf
}

// NewHDBSCAN returns an HDBSCAN clusterer. cfg is assumed valid.
func NewHDBSCAN(cfg config.Clustering) *HDBSCAN {
	return &HDBSCAN{
		MinClusterSize: cfg.MinClusterSize,
		MinSamples:     cfg.MinSamples,
		Selection:      cfg.Selection,
	}
}

// Cluster labels every row. Selected clusters are numbered 0..k-1 in the
// order they appear in the condensed tree.
func (h *HDBSCAN) Cluster(coords mat.Matrix) (Result, error) {
	pts, err := points2D(coords)
	if err != nil {
		return Result{}, err
	}
	n := len(pts)
	if n == 0 {
		return Result{Labels: []int{}, Probabilities: []float64{}}, nil
	}
	if n < h.MinClusterSize || n < 2 {
		monitoring.Warnf("[hdbscan] %d points is fewer than min_cluster_size=%d; all points are noise", n, h.MinClusterSize)
		return allNoise(n), nil
	}

	monitoring.Logf("[hdbscan] clustering %d points: min_cluster_size=%d min_samples=%d selection=%s",
		n, h.MinClusterSize, h.MinSamples, h.Selection)

	core := coreDistances(pts, h.MinSamples)
	mst := primMST(pts, core)
	tree := condenseTree(singleLinkage(mst, n), n, h.MinClusterSize)
	stability := computeStability(tree)

	var selected []int
	if h.Selection == config.SelectionLeaf {
		selected = leafClusters(tree)
	} else {
		selected = eomClusters(tree, stability)
	}

	res := labelPoints(tree, selected, n)
	s := Summarize(res.Labels)
	monitoring.Logf("[hdbscan] found %d clusters, %d noise points (%.1f%%)", s.Clusters, s.Noise, 100*s.NoiseFraction)
	return res, nil
}

// coreDistances returns, for every point, the distance to its k-th nearest
// neighbour with the point itself counted as the first, k = min(minSamples, n).
func coreDistances(pts [][2]float64, minSamples int) []float64 {
	k := minSamples
	if k > len(pts) {
		k = len(pts)
	}

	// kdtree.New reorders its input.
	kp := make(kdtree.Points, len(pts))
	for i, p := range pts {
		kp[i] = kdtree.Point{p[0], p[1]}
	}
	tree := kdtree.New(kp, false)

	core := make([]float64, len(pts))
	for i, p := range pts {
		keep := kdtree.NewNKeeper(k)
		tree.NearestSet(keep, kdtree.Point{p[0], p[1]})
		worst := 0.0
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			worst = math.Max(worst, c.Dist)
		}
		core[i] = math.Sqrt(worst) // kdtree distances are squared
	}
	return core
}

type mstEdge struct {
	a, b   int
	weight float64
}

// primMST builds the minimum spanning tree of the complete graph under
// mutual reachability max(core[i], core[j], d(i, j)). Ties pick the lowest
// index, and an unreachable remainder (infinite weights) still gets an edge.
func primMST(pts [][2]float64, core []float64) []mstEdge {
	n := len(pts)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	for len(edges) < n-1 {
		inTree[current] = true
		next, nextW := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			dx, dy := pts[current][0]-pts[j][0], pts[current][1]-pts[j][1]
			mr := math.Max(math.Sqrt(dx*dx+dy*dy), math.Max(core[current], core[j]))
			if mr < best[j] {
				best[j] = mr
				from[j] = current
			}
			if next == -1 || best[j] < nextW {
				next, nextW = j, best[j]
			}
		}
		edges = append(edges, mstEdge{a: from[next], b: next, weight: nextW})
		current = next
	}
	return edges
}

// linkage is one merge of the single-linkage dendrogram. Nodes below n are
// points; merge i creates node n+i.
type linkage struct {
	left, right int
	dist        float64
	size        int
}

func singleLinkage(mst []mstEdge, n int) []linkage {
	sorted := make([]mstEdge, len(mst))
	copy(sorted, mst)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].weight < sorted[j].weight })

	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	out := make([]linkage, 0, n-1)
	next := n
	for _, e := range sorted {
		a, b := find(e.a), find(e.b)
		out = append(out, linkage{left: a, right: b, dist: e.weight, size: size[a] + size[b]})
		parent[a], parent[b] = next, next
		size[next] = size[a] + size[b]
		next++
	}
	return out
}

// condensedRow is one edge of the condensed tree: child (a point when below
// n, otherwise a cluster) leaves parent at density lambda.
type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

type condensedTree struct {
	n    int
	rows []condensedRow
}

func (t condensedTree) root() int { return t.n }

func lambdaOf(dist float64) float64 {
	if dist <= 0 {
		return maxLambda
	}
	return math.Min(1/dist, maxLambda)
}

// condenseTree walks the dendrogram from the root. A split where both sides
// have at least minSize points creates two new clusters; otherwise the
// smaller side's points fall out of the parent cluster, which continues.
// Clusters are numbered n, n+1, ... in breadth-first order.
func condenseTree(hier []linkage, n, minSize int) condensedTree {
	root := 2*n - 2
	nodeSize := func(node int) int {
		if node < n {
			return 1
		}
		return hier[node-n].size
	}
	children := func(node int) (int, int) {
		h := hier[node-n]
		return h.left, h.right
	}
	subtree := func(node int) []int {
		out := []int{node}
		for i := 0; i < len(out); i++ {
			if out[i] >= n {
				l, r := children(out[i])
				out = append(out, l, r)
			}
		}
		return out
	}

	relabel := make(map[int]int)
	relabel[root] = n
	nextLabel := n + 1
	ignore := make([]bool, 2*n-1)
	var rows []condensedRow

	fallOut := func(parent, node int, lambda float64) {
		for _, sub := range subtree(node) {
			if sub < n {
				rows = append(rows, condensedRow{parent: parent, child: sub, lambda: lambda, size: 1})
			}
			ignore[sub] = true
		}
	}

	for _, node := range subtree(root) {
		if ignore[node] || node < n {
			continue
		}
		left, right := children(node)
		lambda := lambdaOf(hier[node-n].dist)
		lc, rc := nodeSize(left), nodeSize(right)
		p := relabel[node]

		switch {
		case lc >= minSize && rc >= minSize:
			relabel[left] = nextLabel
			rows = append(rows, condensedRow{parent: p, child: nextLabel, lambda: lambda, size: lc})
			nextLabel++
			relabel[right] = nextLabel
			rows = append(rows, condensedRow{parent: p, child: nextLabel, lambda: lambda, size: rc})
			nextLabel++
		case lc < minSize && rc < minSize:
			fallOut(p, left, lambda)
			fallOut(p, right, lambda)
		case lc < minSize:
			relabel[right] = p
			fallOut(p, left, lambda)
		default:
			relabel[left] = p
			fallOut(p, right, lambda)
		}
	}
	return condensedTree{n: n, rows: rows}
}

// computeStability sums (lambda - birth) * size over the rows leaving each
// cluster. The root is born at lambda 0.
func computeStability(t condensedTree) map[int]float64 {
	birth := map[int]float64{t.root(): 0}
	for _, r := range t.rows {
		if r.child >= t.n {
			birth[r.child] = r.lambda
		}
	}
	stability := make(map[int]float64, len(birth))
	for c := range birth {
		stability[c] = 0
	}
	for _, r := range t.rows {
		stability[r.parent] += (r.lambda - birth[r.parent]) * float64(r.size)
	}
	return stability
}

// clusterChildren maps each cluster to its child clusters.
func clusterChildren(t condensedTree) map[int][]int {
	out := make(map[int][]int)
	for _, r := range t.rows {
		if r.child >= t.n {
			out[r.parent] = append(out[r.parent], r.child)
		}
	}
	return out
}

// eomClusters selects by excess of mass: processing from the leaves up, a
// cluster is kept unless its children together are more stable. The root is
// never selected.
func eomClusters(t condensedTree, stability map[int]float64) []int {
	kids := clusterChildren(t)
	nodes := make([]int, 0, len(stability))
	for c := range stability {
		if c != t.root() {
			nodes = append(nodes, c)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nodes)))

	stab := make(map[int]float64, len(stability))
	for c, s := range stability {
		stab[c] = s
	}
	isCluster := make(map[int]bool, len(nodes))
	for _, c := range nodes {
		isCluster[c] = true
	}

	for _, c := range nodes {
		sub := 0.0
		for _, k := range kids[c] {
			sub += stab[k]
		}
		if sub > stab[c] {
			isCluster[c] = false
			stab[c] = sub
			continue
		}
		queue := append([]int(nil), kids[c]...)
		for len(queue) > 0 {
			d := queue[0]
			queue = queue[1:]
			isCluster[d] = false
			queue = append(queue, kids[d]...)
		}
	}

	var selected []int
	for _, c := range nodes {
		if isCluster[c] {
			selected = append(selected, c)
		}
	}
	sort.Ints(selected)
	return selected
}

// leafClusters selects every cluster without child clusters. A tree that
// never splits has no leaves besides the root, so nothing is selected.
func leafClusters(t condensedTree) []int {
	kids := clusterChildren(t)
	var leaves []int
	for _, r := range t.rows {
		if r.child >= t.n && len(kids[r.child]) == 0 {
			leaves = append(leaves, r.child)
		}
	}
	sort.Ints(leaves)
	return leaves
}

// labelPoints gives each point the id of the selected cluster it belongs to,
// or Noise. Membership strength is the point's exit lambda relative to the
// largest exit lambda of its cluster.
func labelPoints(t condensedTree, selected []int, n int) Result {
	id := make(map[int]int, len(selected))
	for i, c := range selected {
		id[c] = i
	}
	up := make(map[int]int) // cluster → parent cluster
	for _, r := range t.rows {
		if r.child >= t.n {
			up[r.child] = r.parent
		}
	}

	res := allNoise(n)
	exit := make([]float64, n)
	for _, r := range t.rows {
		if r.child >= t.n {
			continue
		}
		exit[r.child] = r.lambda
		for c := r.parent; ; {
			if l, ok := id[c]; ok {
				res.Labels[r.child] = l
				break
			}
			p, ok := up[c]
			if !ok {
				break
			}
			c = p
		}
	}

	// Deepest exit per selected cluster, over its whole subtree.
	death := make([]float64, len(selected))
	for p, l := range res.Labels {
		if l != Noise {
			death[l] = math.Max(death[l], exit[p])
		}
	}
	for p, l := range res.Labels {
		if l == Noise {
			continue
		}
		if death[l] == 0 {
			res.Probabilities[p] = 1
			continue
		}
		res.Probabilities[p] = math.Min(exit[p], death[l]) / death[l]
	}
	return res
}
