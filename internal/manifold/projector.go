// Package manifold reduces high-dimensional embeddings to a 2D layout that
// preserves local neighbourhoods.
//
// Every backend is deterministic for a fixed seed and input matrix. Any
// internal parallelism is confined to stages whose output does not depend
// on scheduling.
package manifold

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/glitch.audit/internal/config"
	"gonum.org/v1/gonum/mat"
)

// Projector maps an N×D matrix to N×2 coordinates.
type Projector interface {
	Project(ctx context.Context, X mat.Matrix) (*mat.Dense, error)
}

// New returns the projector selected by cfg.Method.
func New(cfg config.Projection, seed int64) (Projector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Method {
	case config.ProjectionUMAP:
		return NewUMAP(cfg, seed), nil
	case config.ProjectionTSNE:
		return NewTSNE(cfg, seed), nil
	}
	return nil, fmt.Errorf("unknown projection method %q", cfg.Method)
}

// trivialLayout handles inputs too small to embed: no rows gives an empty
// result, a single row sits at the origin.
func trivialLayout(n int) (*mat.Dense, bool) {
	switch n {
	case 0:
		return &mat.Dense{}, true
	case 1:
		return mat.NewDense(1, config.RequiredComponents, nil), true
	}
	return nil, false
}

// Bounds is the coordinate range of a 2D layout.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Extent returns the bounding box of the first two columns of Y.
func Extent(Y mat.Matrix) Bounds {
	if Y == nil {
		return Bounds{}
	}
	r, c := Y.Dims()
	if r == 0 || c < 2 {
		return Bounds{}
	}
	b := Bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	for i := 0; i < r; i++ {
		x, y := Y.At(i, 0), Y.At(i, 1)
		b.MinX = math.Min(b.MinX, x)
		b.MaxX = math.Max(b.MaxX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

func (b Bounds) String() string {
	return fmt.Sprintf("x=[%.2f, %.2f] y=[%.2f, %.2f]", b.MinX, b.MaxX, b.MinY, b.MaxY)
}
