package manifold

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Parameters of the low-dimensional similarity 1 / (1 + a·d^(2b)) for the
// common min_dist = 0.1, spread = 1 case.
const (
	defaultA = 1.576943460405378
	defaultB = 0.8950608781227859
)

const spread = 1.0

// fitAB finds a and b so that 1 / (1 + a·x^(2b)) best matches, in the least
// squares sense, a curve that is 1 below minDist and decays exponentially
// beyond it.
func fitAB(minDist float64) (a, b float64) {
	xs := make([]float64, 300)
	floats.Span(xs, 0, 3*spread)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		if x < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist) / spread)
		}
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			a, b := p[0], p[1]
			if a <= 0 || b <= 0 {
				return math.MaxFloat64
			}
			sse := 0.0
			for i, x := range xs {
				r := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
				sse += r * r
			}
			return sse
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{Absolute: 1e-12, Iterations: 200},
	}
	res, err := optimize.Minimize(problem, []float64{1, 1}, settings, &optimize.NelderMead{})
	if err != nil || res == nil || !validAB(res.X) {
		return defaultA, defaultB
	}
	return res.X[0], res.X[1]
}

func validAB(p []float64) bool {
	return len(p) == 2 && p[0] > 0 && p[1] > 0 && !math.IsNaN(p[0]) && !math.IsNaN(p[1]) &&
		!math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
