package density

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func init() {
	monitoring.SetLogger(nil)
}

// blobsWithOutliers returns three tight 2D blobs of 100 points followed by
// ten isolated points.
func blobsWithOutliers() (*mat.Dense, []int) {
	X, truth := testutil.Blobs([][]float64{{0, 0}, {10, 0}, {0, 10}}, 100, 0.5, 21)
	out := mat.NewDense(310, 2, nil)
	out.Slice(0, 300, 0, 2).(*mat.Dense).Copy(X)
	for i := 0; i < 10; i++ {
		out.Set(300+i, 0, 40+float64(i)*6)
		out.Set(300+i, 1, -30)
		truth = append(truth, -1)
	}
	return out, truth
}

func hdbscanConfig(minClusterSize, minSamples int, selection string) config.Clustering {
	c := config.Defaults().Clustering
	c.MinClusterSize = minClusterSize
	c.MinSamples = minSamples
	c.Selection = selection
	return c
}

func assertRecoversBlobs(t *testing.T, res Result, truth []int) {
	t.Helper()
	require.Len(t, res.Labels, len(truth))
	blobLabel := map[int]int{}
	for i, want := range truth {
		got := res.Labels[i]
		if want == -1 {
			assert.Equal(t, Noise, got, "outlier %d", i)
			assert.Zero(t, res.Probabilities[i])
			continue
		}
		if got == Noise {
			continue // a few fringe points may be noise
		}
		if l, ok := blobLabel[want]; ok {
			assert.Equal(t, l, got, "point %d split from its blob", i)
		} else {
			blobLabel[want] = got
		}
		assert.Greater(t, res.Probabilities[i], 0.0)
		assert.LessOrEqual(t, res.Probabilities[i], 1.0)
	}
	assert.Len(t, blobLabel, 3)
	assert.Equal(t, 3, Summarize(res.Labels).Clusters)
}

func TestHDBSCAN_FindsBlobsAndNoise(t *testing.T) {
	X, truth := blobsWithOutliers()
	for _, sel := range []string{config.SelectionEOM, config.SelectionLeaf} {
		t.Run(sel, func(t *testing.T) {
			res, err := NewHDBSCAN(hdbscanConfig(30, 10, sel)).Cluster(X)
			require.NoError(t, err)
			assertRecoversBlobs(t, res, truth)

			s := Summarize(res.Labels)
			assert.Less(t, s.NoiseFraction, 0.15)
		})
	}
}

func TestHDBSCAN_LabelsAreDenseFromZero(t *testing.T) {
	X, _ := blobsWithOutliers()
	res, err := NewHDBSCAN(hdbscanConfig(30, 10, config.SelectionEOM)).Cluster(X)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, l := range res.Labels {
		if l != Noise {
			seen[l] = true
		}
	}
	for i := 0; i < len(seen); i++ {
		assert.True(t, seen[i], "missing id %d", i)
	}
}

func TestHDBSCAN_Deterministic(t *testing.T) {
	X, _ := blobsWithOutliers()
	h := NewHDBSCAN(hdbscanConfig(15, 5, config.SelectionEOM))
	a, err := h.Cluster(X)
	require.NoError(t, err)
	b, err := h.Cluster(X)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHDBSCAN_SmallInputs(t *testing.T) {
	h := NewHDBSCAN(hdbscanConfig(5, 5, config.SelectionEOM))

	res, err := h.Cluster(&mat.Dense{})
	require.NoError(t, err)
	assert.Empty(t, res.Labels)

	res, err = h.Cluster(mat.NewDense(3, 2, []float64{0, 0, 1, 1, 2, 2}))
	require.NoError(t, err)
	assert.Equal(t, []int{Noise, Noise, Noise}, res.Labels)
	assert.Equal(t, []float64{0, 0, 0}, res.Probabilities)

	_, err = h.Cluster(mat.NewDense(3, 3, nil))
	assert.Error(t, err)
}

func TestHDBSCAN_UniformNoiseHasNoClusters(t *testing.T) {
	// Sparse uniform scatter never splits into two sides of min_cluster_size.
	rng := rand.New(rand.NewPCG(3, 4))
	X := mat.NewDense(30, 2, nil)
	for i := 0; i < 30; i++ {
		X.Set(i, 0, rng.Float64()*100)
		X.Set(i, 1, rng.Float64()*100)
	}
	res, err := NewHDBSCAN(hdbscanConfig(20, 20, config.SelectionEOM)).Cluster(X)
	require.NoError(t, err)
	assert.Equal(t, 0, Summarize(res.Labels).Clusters, "the root is never selected")
}

func TestHDBSCAN_CoincidentPoints(t *testing.T) {
	X := mat.NewDense(40, 2, nil)
	for i := 20; i < 40; i++ {
		X.Set(i, 0, 100)
	}
	res, err := NewHDBSCAN(hdbscanConfig(10, 5, config.SelectionEOM)).Cluster(X)
	require.NoError(t, err)
	assert.Equal(t, 2, Summarize(res.Labels).Clusters)
	assert.NotEqual(t, res.Labels[0], res.Labels[39])
	for _, p := range res.Probabilities {
		assert.False(t, math.IsNaN(p))
	}
}

func TestCoreDistances(t *testing.T) {
	pts := [][2]float64{{0, 0}, {1, 0}, {2, 0}, {3, 0}}
	assert.Equal(t, []float64{1, 1, 1, 1}, coreDistances(pts, 2))
	assert.Equal(t, []float64{2, 1, 1, 2}, coreDistances(pts, 3))
	assert.Equal(t, []float64{3, 2, 2, 3}, coreDistances(pts, 10))
	assert.Equal(t, []float64{0, 0, 0, 0}, coreDistances(pts, 1))
}

func TestPrimMST(t *testing.T) {
	pts := [][2]float64{{0, 0}, {5, 0}, {1, 0}, {6, 0}}
	edges := primMST(pts, make([]float64, 4))
	require.Len(t, edges, 3)
	total := 0.0
	for _, e := range edges {
		total += e.weight
	}
	assert.InDelta(t, 6, total, 1e-12)
	assert.Equal(t, mstEdge{a: 0, b: 2, weight: 1}, edges[0])
}

func TestPrimMST_InfiniteWeights(t *testing.T) {
	pts := [][2]float64{{0, 0}, {1, 0}, {2, 0}}
	core := []float64{0, 0, math.Inf(1)}
	edges := primMST(pts, core)
	require.Len(t, edges, 2)
	assert.Equal(t, mstEdge{a: 0, b: 1, weight: 1}, edges[0])
	assert.Equal(t, 2, edges[1].b)
	assert.True(t, math.IsInf(edges[1].weight, 1))
}

func TestCluster_RejectsNonFinite(t *testing.T) {
	clusterers := map[string]Clusterer{
		"hdbscan": NewHDBSCAN(hdbscanConfig(2, 2, config.SelectionEOM)),
		"dbscan":  NewDBSCAN(1, 2),
	}
	for name, c := range clusterers {
		for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			t.Run(name, func(t *testing.T) {
				coords := mat.NewDense(6, 2, []float64{0, 0, 0.1, 0, 0, 0.1, 5, 5, 5.1, 5, 5, 5.1})
				coords.Set(3, 1, bad)
				_, err := c.Cluster(coords)
				require.ErrorIs(t, err, ErrNonFinite)
				assert.Contains(t, err.Error(), "row 3")
			})
		}
	}
}

// handTree builds a condensed tree over 10 points:
//
//	root(10) ─┬─ 11 (6 pts, born λ=1) ─┬─ 13 (pts 0-2, born λ=2)
//	          │                        └─ 14 (pts 3-5, born λ=2)
//	          └─ 12 (pts 6-9, born λ=1, exit λ=3)
func handTree(leafExit float64) condensedTree {
	rows := []condensedRow{
		{parent: 10, child: 11, lambda: 1, size: 6},
		{parent: 10, child: 12, lambda: 1, size: 4},
		{parent: 11, child: 13, lambda: 2, size: 3},
		{parent: 11, child: 14, lambda: 2, size: 3},
	}
	for p := 0; p < 3; p++ {
		rows = append(rows, condensedRow{parent: 13, child: p, lambda: leafExit, size: 1})
		rows = append(rows, condensedRow{parent: 14, child: p + 3, lambda: leafExit, size: 1})
	}
	for p := 6; p < 10; p++ {
		rows = append(rows, condensedRow{parent: 12, child: p, lambda: 3, size: 1})
	}
	return condensedTree{n: 10, rows: rows}
}

func TestComputeStability(t *testing.T) {
	s := computeStability(handTree(10))
	assert.InDelta(t, 10, s[10], 1e-12)
	assert.InDelta(t, 6, s[11], 1e-12)
	assert.InDelta(t, 8, s[12], 1e-12)
	assert.InDelta(t, 24, s[13], 1e-12)
	assert.InDelta(t, 24, s[14], 1e-12)
}

func TestSelection_EOMPrefersStableChildren(t *testing.T) {
	tree := handTree(10)
	selected := eomClusters(tree, computeStability(tree))
	assert.Equal(t, []int{12, 13, 14}, selected)

	res := labelPoints(tree, selected, 10)
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2, 0, 0, 0, 0}, res.Labels)
}

func TestSelection_EOMPrefersStableParent(t *testing.T) {
	tree := handTree(2.5)
	selected := eomClusters(tree, computeStability(tree))
	assert.Equal(t, []int{11, 12}, selected)

	res := labelPoints(tree, selected, 10)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1}, res.Labels)
	for _, p := range res.Probabilities {
		assert.Equal(t, 1.0, p)
	}

	assert.Equal(t, []int{12, 13, 14}, leafClusters(tree), "leaf ignores stability")
}

func TestSelection_RootOnly(t *testing.T) {
	var rows []condensedRow
	for p := 0; p < 5; p++ {
		rows = append(rows, condensedRow{parent: 5, child: p, lambda: float64(p + 1), size: 1})
	}
	tree := condensedTree{n: 5, rows: rows}

	assert.Empty(t, eomClusters(tree, computeStability(tree)))
	assert.Empty(t, leafClusters(tree))
	res := labelPoints(tree, nil, 5)
	assert.Equal(t, []int{Noise, Noise, Noise, Noise, Noise}, res.Labels)
}

func TestCondenseTree(t *testing.T) {
	// Two pairs far apart: {0,1} at distance 1, {2,3} at distance 2, joined at 10.
	hier := []linkage{
		{left: 0, right: 1, dist: 1, size: 2},
		{left: 2, right: 3, dist: 2, size: 2},
		{left: 4, right: 5, dist: 10, size: 4},
	}
	tree := condenseTree(hier, 4, 2)

	assert.ElementsMatch(t, []condensedRow{
		{parent: 4, child: 5, lambda: 0.1, size: 2},
		{parent: 4, child: 6, lambda: 0.1, size: 2},
		{parent: 5, child: 0, lambda: 1, size: 1},
		{parent: 5, child: 1, lambda: 1, size: 1},
		{parent: 6, child: 2, lambda: 0.5, size: 1},
		{parent: 6, child: 3, lambda: 0.5, size: 1},
	}, tree.rows)

	// With min size 3 neither side qualifies: every point leaves the root.
	tree = condenseTree(hier, 4, 3)
	for _, r := range tree.rows {
		assert.Equal(t, 4, r.parent)
		assert.Equal(t, 0.1, r.lambda)
	}
	assert.Len(t, tree.rows, 4)
}

func TestDBSCAN(t *testing.T) {
	X, truth := blobsWithOutliers()
	res, err := NewDBSCAN(1.0, 5).Cluster(X)
	require.NoError(t, err)
	assertRecoversBlobs(t, res, truth)

	// Clusters are numbered in discovery order.
	for _, l := range res.Labels {
		if l != Noise {
			assert.Equal(t, 0, l)
			break
		}
	}
}

func TestDBSCAN_Empty(t *testing.T) {
	res, err := NewDBSCAN(1, 2).Cluster(&mat.Dense{})
	require.NoError(t, err)
	assert.Empty(t, res.Labels)
}

func TestSpatialIndex_RegionQuery(t *testing.T) {
	pts := [][2]float64{{0, 0}, {0.5, 0}, {-0.4, -0.4}, {3, 3}, {0, 1.9}}

	si := NewSpatialIndex(1)
	si.Build(pts)
	assert.Equal(t, []int{0, 1, 2}, si.RegionQuery(pts, 0, 1))

	// Cells smaller than the radius still find far neighbours.
	fine := NewSpatialIndex(0.25)
	fine.Build(pts)
	assert.Equal(t, []int{0, 1, 2, 4}, fine.RegionQuery(pts, 0, 2))
}

func TestNew(t *testing.T) {
	c, err := New(config.Defaults().Clustering)
	require.NoError(t, err)
	assert.IsType(t, &HDBSCAN{}, c)

	cfg := config.Defaults().Clustering
	cfg.Algorithm = config.ClusterDBSCAN
	c, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &DBSCAN{}, c)

	cfg.MinClusterSize = 1
	_, err = New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]int{0, 0, 1, Noise, 3, Noise, Noise, 1})
	assert.Equal(t, Summary{Clusters: 3, Noise: 3, NoiseFraction: 3.0 / 8}, s)
	assert.Equal(t, Summary{}, Summarize(nil))
}
