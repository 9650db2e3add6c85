// Package density assigns cluster ids to points of a 2D layout using
// density-based methods. Sparse points get the Noise id instead of being
// forced into the nearest cluster.
//
// Cluster ids are opaque. They are numbered 0..k-1 within one result and carry
// no meaning across runs with different inputs, seeds or parameters.
package density

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/glitch.audit/internal/config"
	"gonum.org/v1/gonum/mat"
)

// Noise is the cluster id of unassigned points.
const Noise = -1

// Result holds one cluster id and one membership strength per input row.
// Probability is 0 for noise and in (0, 1] for members.
type Result struct {
	Labels        []int
	Probabilities []float64
}

// Clusterer groups the rows of an N×2 coordinate matrix.
type Clusterer interface {
	Cluster(coords mat.Matrix) (Result, error)
}

// New returns the clusterer selected by cfg.Algorithm.
func New(cfg config.Clustering) (Clusterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case config.ClusterHDBSCAN:
		return NewHDBSCAN(cfg), nil
	case config.ClusterDBSCAN:
		return NewDBSCAN(cfg.Eps, cfg.MinSamples), nil
	}
	return nil, fmt.Errorf("unknown clustering algorithm %q", cfg.Algorithm)
}

// Summary counts clusters and noise in a labelling.
type Summary struct {
	Clusters      int
	Noise         int
	NoiseFraction float64
}

// Summarize counts the distinct non-noise ids and the noise points in labels.
func Summarize(labels []int) Summary {
	seen := make(map[int]struct{})
	var s Summary
	for _, l := range labels {
		if l == Noise {
			s.Noise++
			continue
		}
		seen[l] = struct{}{}
	}
	s.Clusters = len(seen)
	if len(labels) > 0 {
		s.NoiseFraction = float64(s.Noise) / float64(len(labels))
	}
	return s
}

// ErrNonFinite is returned for NaN or infinite coordinates.
var ErrNonFinite = errors.New("non-finite coordinate")

func points2D(coords mat.Matrix) ([][2]float64, error) {
	if coords == nil {
		return nil, nil
	}
	n, c := coords.Dims()
	if n == 0 {
		return nil, nil
	}
	if c != config.RequiredComponents {
		return nil, fmt.Errorf("clustering expects %d columns, got %d", config.RequiredComponents, c)
	}
	pts := make([][2]float64, n)
	for i := range pts {
		x, y := coords.At(i, 0), coords.At(i, 1)
		if !finite(x) || !finite(y) {
			return nil, fmt.Errorf("%w at row %d: (%v, %v)", ErrNonFinite, i, x, y)
		}
		pts[i] = [2]float64{x, y}
	}
	return pts, nil
}

func allNoise(n int) Result {
	r := Result{Labels: make([]int, n), Probabilities: make([]float64, n)}
	for i := range r.Labels {
		r.Labels[i] = Noise
	}
	return r
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
