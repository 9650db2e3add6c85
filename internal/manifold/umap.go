package manifold

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// UMAP layout optimisation constants.
const (
	negativeSampleRate = 5
	repulsionStrength  = 1.0
	initialAlpha       = 1.0
	gradientClip       = 4.0
	layoutScale        = 10.0
	initNoise          = 1e-4
	smallDatasetLimit  = 10000
)

// UMAP is a uniform-manifold-approximation projector. The neighbour graph
// is exact, so results depend only on the input, the configuration and the
// seed.
type UMAP struct {
	cfg  config.Projection
	seed int64
}

// NewUMAP returns a UMAP projector. cfg is assumed valid.
func NewUMAP(cfg config.Projection, seed int64) *UMAP {
	return &UMAP{cfg: cfg, seed: seed}
}

// Project embeds X into two dimensions.
func (u *UMAP) Project(ctx context.Context, X mat.Matrix) (*mat.Dense, error) {
	n, d := X.Dims()
	if Y, ok := trivialLayout(n); ok {
		return Y, nil
	}
	monitoring.Logf("[umap] computing projection: n=%d dim=%d n_neighbors=%d min_dist=%g metric=%s",
		n, d, u.cfg.NNeighbors, u.cfg.MinDist, u.cfg.Metric)

	s, err := newSpace(X, u.cfg.Metric)
	if err != nil {
		return nil, err
	}
	knn, err := nearestNeighbors(ctx, s, u.cfg.NNeighbors)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbours: %w", err)
	}
	edges := fuzzySimplicialSet(knn)

	rng := rand.New(rand.NewPCG(uint64(u.seed), uint64(u.seed)^0x9e3779b97f4a7c15))
	Y := u.initialLayout(X, rng)

	epochs := u.epochs(n)
	a, b := fitAB(u.cfg.MinDist)
	if err := optimizeLayout(ctx, Y, edges, epochs, a, b, rng); err != nil {
		return nil, err
	}

	monitoring.Logf("[umap] projection complete: %d epochs, %s", epochs, Extent(Y))
	return Y, nil
}

func (u *UMAP) epochs(n int) int {
	if u.cfg.NEpochs > 0 {
		return u.cfg.NEpochs
	}
	if n <= smallDatasetLimit {
		return 500
	}
	return 200
}

// initialLayout starts from the top two principal components when asked to,
// falling back to a uniform random layout. Either way the result is rescaled
// to [0, 10] per axis.
func (u *UMAP) initialLayout(X mat.Matrix, rng *rand.Rand) *mat.Dense {
	n, _ := X.Dims()
	var Y *mat.Dense
	if u.cfg.Init == config.InitPCA {
		Y = pcaLayout(X)
		if Y == nil {
			monitoring.Warnf("[umap] PCA initialisation failed, using random layout")
		}
	}
	if Y == nil {
		Y = mat.NewDense(n, 2, nil)
		for i := 0; i < n; i++ {
			Y.Set(i, 0, rng.Float64()*2*layoutScale-layoutScale)
			Y.Set(i, 1, rng.Float64()*2*layoutScale-layoutScale)
		}
	} else {
		maxAbs := 0.0
		for i := 0; i < n; i++ {
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(Y.At(i, 0)), math.Abs(Y.At(i, 1))))
		}
		scale := 1.0
		if maxAbs > 0 {
			scale = layoutScale / maxAbs
		}
		for i := 0; i < n; i++ {
			for j := 0; j < 2; j++ {
				Y.Set(i, j, Y.At(i, j)*scale+rng.NormFloat64()*initNoise)
			}
		}
	}

	for j := 0; j < 2; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < n; i++ {
			lo = math.Min(lo, Y.At(i, j))
			hi = math.Max(hi, Y.At(i, j))
		}
		if hi-lo == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			Y.Set(i, j, layoutScale*(Y.At(i, j)-lo)/(hi-lo))
		}
	}
	return Y
}

// pcaLayout projects X onto its two leading principal components, or
// returns nil when the decomposition fails or yields fewer than two.
func pcaLayout(X mat.Matrix) *mat.Dense {
	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return nil
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, k := vecs.Dims()
	if k < 2 {
		return nil
	}

	n, d := X.Dims()
	centred := mat.DenseCopyOf(X)
	for j := 0; j < d; j++ {
		m := stat.Mean(mat.Col(nil, j, X), nil)
		for i := 0; i < n; i++ {
			centred.Set(i, j, centred.At(i, j)-m)
		}
	}

	var Y mat.Dense
	Y.Mul(centred, vecs.Slice(0, d, 0, 2))
	return &Y
}

// optimizeLayout runs stochastic gradient descent on the cross entropy
// between the fuzzy graph and the layout, with negative sampling. Edges are
// visited in a fixed order and all randomness comes from rng.
func optimizeLayout(ctx context.Context, Y *mat.Dense, edges []edge, epochs int, a, b float64, rng *rand.Rand) error {
	if len(edges) == 0 {
		return nil
	}
	n, _ := Y.Dims()

	maxW := 0.0
	for _, e := range edges {
		maxW = math.Max(maxW, e.weight)
	}

	// Edges too weak to be sampled even once are dropped.
	var active []edge
	for _, e := range edges {
		if e.weight >= maxW/float64(epochs) {
			active = append(active, e)
		}
	}

	perSample := make([]float64, len(active))
	perNegative := make([]float64, len(active))
	nextSample := make([]float64, len(active))
	nextNegative := make([]float64, len(active))
	for i, e := range active {
		perSample[i] = maxW / e.weight
		perNegative[i] = perSample[i] / negativeSampleRate
		nextSample[i] = perSample[i]
		nextNegative[i] = perNegative[i]
	}

	data := Y.RawMatrix()
	stride := data.Stride
	point := func(i int) []float64 { return data.Data[i*stride : i*stride+2] }

	alpha := initialAlpha
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fe := float64(epoch)
		for i, e := range active {
			if nextSample[i] > fe {
				continue
			}
			current, other := point(e.head), point(e.tail)

			d2 := squaredDist(current, other)
			coeff := 0.0
			if d2 > 0 {
				coeff = -2 * a * b * math.Pow(d2, b-1) / (a*math.Pow(d2, b) + 1)
			}
			for k := 0; k < 2; k++ {
				g := clip(coeff*(current[k]-other[k])) * alpha
				current[k] += g
				other[k] -= g
			}
			nextSample[i] += perSample[i]

			negatives := int((fe - nextNegative[i]) / perNegative[i])
			for p := 0; p < negatives; p++ {
				j := rng.IntN(n)
				if j == e.head {
					continue
				}
				other := point(j)
				d2 := squaredDist(current, other)
				if d2 <= 0 {
					continue
				}
				coeff := 2 * repulsionStrength * b / ((0.001 + d2) * (a*math.Pow(d2, b) + 1))
				for k := 0; k < 2; k++ {
					current[k] += clip(coeff*(current[k]-other[k])) * alpha
				}
			}
			nextNegative[i] += float64(negatives) * perNegative[i]
		}
		alpha = initialAlpha * (1 - float64(epoch+1)/float64(epochs))

		if epochs >= 10 && (epoch+1)%(epochs/10) == 0 {
			monitoring.Logf("[umap] completed %d/%d epochs", epoch+1, epochs)
		}
	}
	return nil
}

func squaredDist(p, q []float64) float64 {
	dx, dy := p[0]-q[0], p[1]-q[1]
	return dx*dx + dy*dy
}

func clip(v float64) float64 {
	if v > gradientClip {
		return gradientClip
	}
	if v < -gradientClip {
		return -gradientClip
	}
	return v
}
