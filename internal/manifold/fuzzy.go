package manifold

import (
	"math"
	"sort"
)

const (
	smoothKNNIterations = 64
	smoothKNNTolerance  = 1e-5
	minKDistScale       = 1e-3
)

// smoothKNNDist calibrates, for every point, the distance to its nearest
// neighbour (rho) and a bandwidth (sigma) such that the membership strengths
// of its k neighbours sum to log2(k).
func smoothKNNDist(g *knnGraph) (sigmas, rhos []float64) {
	n := len(g.dists)
	sigmas = make([]float64, n)
	rhos = make([]float64, n)
	target := math.Log2(float64(g.k))

	meanAll := 0.0
	count := 0
	for _, row := range g.dists {
		for _, d := range row {
			meanAll += d
			count++
		}
	}
	if count > 0 {
		meanAll /= float64(count)
	}

	for i, row := range g.dists {
		for _, d := range row {
			if d > 0 {
				rhos[i] = d
				break
			}
		}

		lo, hi, mid := 0.0, math.Inf(1), 1.0
		for it := 0; it < smoothKNNIterations; it++ {
			psum := 0.0
			for _, d := range row[1:] {
				if r := d - rhos[i]; r > 0 {
					psum += math.Exp(-r / mid)
				} else {
					psum++
				}
			}
			if math.Abs(psum-target) < smoothKNNTolerance {
				break
			}
			if psum > target {
				hi = mid
				mid = (lo + hi) / 2
			} else {
				lo = mid
				if math.IsInf(hi, 1) {
					mid *= 2
				} else {
					mid = (lo + hi) / 2
				}
			}
		}
		sigmas[i] = mid

		floor := minKDistScale * meanAll
		if rhos[i] > 0 {
			floor = minKDistScale * mean(row)
		}
		if sigmas[i] < floor {
			sigmas[i] = floor
		}
	}
	return sigmas, rhos
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// edge is one directed, weighted edge of the fuzzy graph.
type edge struct {
	head, tail int
	weight     float64
}

// fuzzySimplicialSet builds the symmetric fuzzy union of the per-point
// membership graphs: w(i,j) = a + b - a*b where a and b are the directed
// memberships. Both directions of every edge are returned, sorted by
// (head, tail).
func fuzzySimplicialSet(g *knnGraph) []edge {
	sigmas, rhos := smoothKNNDist(g)

	n := len(g.indices)
	directed := make(map[[2]int]float64, n*g.k)
	for i := range g.indices {
		for jj, j := range g.indices[i] {
			if j == i {
				continue
			}
			var w float64
			d := g.dists[i][jj]
			if d-rhos[i] <= 0 || sigmas[i] == 0 {
				w = 1
			} else {
				w = math.Exp(-(d - rhos[i]) / sigmas[i])
			}
			directed[[2]int{i, j}] = w
		}
	}

	union := make(map[[2]int]float64, 2*len(directed))
	for key, a := range directed {
		b := directed[[2]int{key[1], key[0]}]
		w := a + b - a*b
		union[key] = w
		union[[2]int{key[1], key[0]}] = w
	}

	edges := make([]edge, 0, len(union))
	for key, w := range union {
		if w > 0 {
			edges = append(edges, edge{head: key[0], tail: key[1], weight: w})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].head != edges[j].head {
			return edges[i].head < edges[j].head
		}
		return edges[i].tail < edges[j].tail
	})
	return edges
}
