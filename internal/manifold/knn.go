package manifold

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// knnGraph is the exact k-nearest-neighbour table. Row i lists the k closest
// points to i (i itself included) in ascending distance order.
type knnGraph struct {
	k       int
	indices [][]int
	dists   [][]float64
}

// nearestNeighbors computes the exact kNN table. Rows are split across
// workers but each row is written by exactly one of them and ties are broken
// by index, so the result does not depend on scheduling.
func nearestNeighbors(ctx context.Context, s *space, k int) (*knnGraph, error) {
	n := s.len()
	if k > n {
		k = n
	}
	g := &knnGraph{k: k, indices: make([][]int, n), dists: make([][]float64, n)}

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	if chunk < 64 {
		chunk = 64
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		lo, hi := start, min(start+chunk, n)
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				g.indices[i], g.dists[i] = nearestTo(s, i, k)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

// nearestTo keeps the k best candidates in a small sorted buffer. Ordering is
// by distance, then index.
func nearestTo(s *space, i, k int) ([]int, []float64) {
	idx := make([]int, 0, k)
	dist := make([]float64, 0, k)
	for j := 0; j < s.len(); j++ {
		d := 0.0
		if j != i {
			d = s.distance(i, j)
		}
		if len(idx) == k && !closer(d, j, dist[k-1], idx[k-1]) {
			continue
		}
		pos := len(idx)
		for pos > 0 && closer(d, j, dist[pos-1], idx[pos-1]) {
			pos--
		}
		if len(idx) < k {
			idx = append(idx, 0)
			dist = append(dist, 0)
		}
		copy(idx[pos+1:], idx[pos:len(idx)-1])
		copy(dist[pos+1:], dist[pos:len(dist)-1])
		idx[pos], dist[pos] = j, d
	}
	return idx, dist
}

func closer(d float64, j int, refD float64, refJ int) bool {
	if d != refD {
		return d < refD
	}
	return j < refJ
}
