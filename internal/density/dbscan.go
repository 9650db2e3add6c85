package density

import (
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"gonum.org/v1/gonum/mat"
)

// DBSCAN clusters with a fixed radius. It is the flat counterpart of HDBSCAN
// and is mainly useful when a known density scale should be imposed.
type DBSCAN struct {
	Eps    float64
	MinPts int // neighbourhood size, the point itself included, for a core point
}

// NewDBSCAN returns a DBSCAN clusterer.
func NewDBSCAN(eps float64, minPts int) *DBSCAN {
	return &DBSCAN{Eps: eps, MinPts: minPts}
}

// Cluster labels every row. Clusters are numbered in order of their lowest
// core point index, so the output is deterministic.
func (c *DBSCAN) Cluster(coords mat.Matrix) (Result, error) {
	pts, err := points2D(coords)
	if err != nil {
		return Result{}, err
	}
	n := len(pts)
	if n == 0 {
		return Result{Labels: []int{}, Probabilities: []float64{}}, nil
	}

	// 0 = unvisited, -1 = noise, >0 = cluster id + 1
	labels := make([]int, n)
	clusterID := 0

	index := NewSpatialIndex(c.Eps)
	index.Build(pts)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := index.RegionQuery(pts, i, c.Eps)
		if len(neighbors) < c.MinPts {
			labels[i] = -1
			continue
		}
		clusterID++
		c.expand(pts, index, labels, i, neighbors, clusterID)
	}

	res := Result{Labels: make([]int, n), Probabilities: make([]float64, n)}
	for i, l := range labels {
		if l <= 0 {
			res.Labels[i] = Noise
			continue
		}
		res.Labels[i] = l - 1
		res.Probabilities[i] = 1
	}

	s := Summarize(res.Labels)
	monitoring.Logf("[dbscan] found %d clusters, %d noise points (%.1f%%)", s.Clusters, s.Noise, 100*s.NoiseFraction)
	return res, nil
}

// expand grows a cluster from a core point, breadth first.
func (c *DBSCAN) expand(pts [][2]float64, index *SpatialIndex, labels []int, seed int, neighbors []int, clusterID int) {
	labels[seed] = clusterID
	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]
		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue
		}
		labels[idx] = clusterID
		next := index.RegionQuery(pts, idx, c.Eps)
		if len(next) >= c.MinPts {
			neighbors = append(neighbors, next...)
		}
	}
}
