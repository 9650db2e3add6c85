package manifold

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"
)

// tsneMu serialises t-SNE runs: the library draws from the global math/rand
// source, which must be seeded immediately before each run.
var tsneMu sync.Mutex

// TSNE projects with exact t-SNE. It is quadratic in N and intended for
// subsets and cross-checks of the UMAP layout.
type TSNE struct {
	cfg  config.Projection
	seed int64
}

// NewTSNE returns a t-SNE projector. cfg is assumed valid.
func NewTSNE(cfg config.Projection, seed int64) *TSNE {
	return &TSNE{cfg: cfg, seed: seed}
}

// Project embeds X into two dimensions.
func (t *TSNE) Project(ctx context.Context, X mat.Matrix) (*mat.Dense, error) {
	n, d := X.Dims()
	if Y, ok := trivialLayout(n); ok {
		return Y, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Euclidean distance between unit vectors is monotone in cosine distance.
	s, err := newSpace(X, t.cfg.Metric)
	if err != nil {
		return nil, err
	}
	data := mat.NewDense(n, d, nil)
	for i, row := range s.rows {
		data.SetRow(i, row)
	}

	perplexity := t.cfg.Perplexity
	if limit := float64(n-1) / 3; perplexity > limit {
		perplexity = math.Max(limit, 1)
		monitoring.Warnf("[tsne] perplexity %g too large for %d samples, using %g", t.cfg.Perplexity, n, perplexity)
	}
	monitoring.Logf("[tsne] computing projection: n=%d dim=%d perplexity=%g iterations=%d",
		n, d, perplexity, t.cfg.Iterations)

	tsneMu.Lock()
	rand.Seed(t.seed)
	model := tsne.NewTSNE(config.RequiredComponents, perplexity, t.cfg.LearningRate, t.cfg.Iterations, false)
	model.EmbedData(data, nil)
	tsneMu.Unlock()

	rows, cols := model.Y.Dims()
	if rows != n || cols != config.RequiredComponents {
		return nil, fmt.Errorf("unexpected t-SNE output shape (%d, %d) for %d samples", rows, cols, n)
	}
	Y := mat.DenseCopyOf(model.Y)
	monitoring.Logf("[tsne] projection complete: %s", Extent(Y))
	return Y, nil
}
