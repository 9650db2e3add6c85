package manifold

import (
	"fmt"

	"github.com/banshee-data/glitch.audit/internal/config"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// space holds the rows of the input in the form the metric wants them:
// cosine rows are unit length, correlation rows are centred and unit length.
type space struct {
	rows [][]float64
	zero []bool // rows with zero norm after preprocessing
	dist func(s *space, i, j int) float64
}

func newSpace(X mat.Matrix, metric string) (*space, error) {
	n, _ := X.Dims()
	s := &space{rows: make([][]float64, n), zero: make([]bool, n)}
	for i := 0; i < n; i++ {
		s.rows[i] = mat.Row(nil, i, X)
	}

	switch metric {
	case config.MetricEuclidean:
		s.dist = func(s *space, i, j int) float64 { return floats.Distance(s.rows[i], s.rows[j], 2) }
	case config.MetricManhattan:
		s.dist = func(s *space, i, j int) float64 { return floats.Distance(s.rows[i], s.rows[j], 1) }
	case config.MetricCorrelation:
		for _, r := range s.rows {
			floats.AddConst(-floats.Sum(r)/float64(len(r)), r)
		}
		s.normalise()
		s.dist = angular
	case config.MetricCosine:
		s.normalise()
		s.dist = angular
	default:
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
	return s, nil
}

func (s *space) normalise() {
	for i, r := range s.rows {
		norm := floats.Norm(r, 2)
		if norm == 0 {
			s.zero[i] = true
			continue
		}
		floats.Scale(1/norm, r)
	}
}

// angular is 1 - cos(θ) on pre-normalised rows. Two zero vectors are
// identical; a zero vector is maximally far from anything else.
func angular(s *space, i, j int) float64 {
	zi, zj := s.zero[i], s.zero[j]
	switch {
	case zi && zj:
		return 0
	case zi || zj:
		return 1
	}
	d := 1 - floats.Dot(s.rows[i], s.rows[j])
	if d < 0 {
		return 0
	}
	return d
}

func (s *space) len() int { return len(s.rows) }

func (s *space) distance(i, j int) float64 { return s.dist(s, i, j) }
