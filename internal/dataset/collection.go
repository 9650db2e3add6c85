package dataset

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Input validation errors. All are fatal for a run.
var (
	ErrMissingInput     = errors.New("missing input file")
	ErrRowCountMismatch = errors.New("row count mismatch")
	ErrBadShape         = errors.New("unexpected embedding shape")
	ErrMissingColumn    = errors.New("missing metadata column")
)

// UnknownLabel is assigned when no label can be recovered for a sample.
const UnknownLabel = "unknown"

// Sample is one spectrogram image.
type Sample struct {
	Index          int    // row in the embedding matrix
	ID             string // Gravity Spy sample identifier
	Path           string // image path as recorded by feature extraction
	Label          string // label used for analysis (corrected)
	RawLabel       string // label as loaded, before correction
	Interferometer string // H1, L1 or "unknown"
}

// Collection is an ordered, immutable set of Samples with a row-aligned N×D
// embedding matrix.
type Collection struct {
	samples    []Sample
	embeddings *mat.Dense
}

// NewCollection checks that embeddings has exactly one row per sample and
// holds only finite values, and returns a Collection owning copies of both.
// Sample.Index is restamped to the row position.
func NewCollection(embeddings mat.Matrix, samples []Sample) (*Collection, error) {
	if embeddings == nil {
		return nil, fmt.Errorf("%w: no embedding matrix", ErrBadShape)
	}
	rows, cols := embeddings.Dims()
	if rows != len(samples) {
		return nil, fmt.Errorf("%w: embeddings has %d rows, metadata has %d rows", ErrRowCountMismatch, rows, len(samples))
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := embeddings.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite value %v at row %d column %d", ErrBadShape, v, i, j)
			}
		}
	}
	return newCollection(mat.DenseCopyOf(embeddings), samples, cols)
}

func newCollection(embeddings *mat.Dense, samples []Sample, cols int) (*Collection, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: collection has no samples", ErrBadShape)
	}
	if cols < 1 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrBadShape, cols)
	}
	own := make([]Sample, len(samples))
	copy(own, samples)
	for i := range own {
		own[i].Index = i
	}
	return &Collection{samples: own, embeddings: embeddings}, nil
}

// Len returns the number of samples.
func (c *Collection) Len() int { return len(c.samples) }

// Dim returns the embedding dimension D.
func (c *Collection) Dim() int {
	_, d := c.embeddings.Dims()
	return d
}

// Sample returns the i-th sample.
func (c *Collection) Sample(i int) Sample { return c.samples[i] }

// Samples returns a copy of all samples in row order.
func (c *Collection) Samples() []Sample {
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Embedding returns a copy of the i-th embedding vector.
func (c *Collection) Embedding(i int) []float64 {
	return mat.Row(nil, i, c.embeddings)
}

// Embeddings returns a read-only view of the N×D embedding matrix.
func (c *Collection) Embeddings() mat.Matrix {
	return readOnly{c.embeddings}
}

// Labels returns the analysis label of every sample in row order.
func (c *Collection) Labels() []string {
	out := make([]string, len(c.samples))
	for i, s := range c.samples {
		out[i] = s.Label
	}
	return out
}

// WithSamples returns a new Collection sharing the embeddings but carrying
// replacement metadata. The replacement must keep the row count.
func (c *Collection) WithSamples(samples []Sample) (*Collection, error) {
	if len(samples) != len(c.samples) {
		return nil, fmt.Errorf("%w: have %d rows, replacement has %d", ErrRowCountMismatch, len(c.samples), len(samples))
	}
	return newCollection(c.embeddings, samples, c.Dim())
}

// Subset returns a new Collection holding only the given rows, in order.
func (c *Collection) Subset(rows []int) (*Collection, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: subset selects no samples", ErrBadShape)
	}
	d := c.Dim()
	emb := mat.NewDense(len(rows), d, nil)
	samples := make([]Sample, len(rows))
	for i, r := range rows {
		emb.SetRow(i, mat.Row(nil, r, c.embeddings))
		samples[i] = c.samples[r]
	}
	return newCollection(emb, samples, d)
}

// readOnly hides the concrete *mat.Dense so callers cannot mutate it
// through a type assertion.
type readOnly struct {
	m *mat.Dense
}

func (r readOnly) Dims() (int, int)    { return r.m.Dims() }
func (r readOnly) At(i, j int) float64 { return r.m.At(i, j) }
func (r readOnly) T() mat.Matrix       { return mat.Transpose{Matrix: r} }
