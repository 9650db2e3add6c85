// Package testutil provides shared test utilities and synthetic fixtures.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"path"
	"strings"
	"testing"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Blobs draws perBlob isotropic Gaussian points around each centre. The
// returned truth slice gives the blob index of every row; rows are grouped
// blob by blob.
func Blobs(centres [][]float64, perBlob int, std float64, seed uint64) (*mat.Dense, []int) {
	dim := len(centres[0])
	rng := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(len(centres)*perBlob, dim, nil)
	truth := make([]int, 0, len(centres)*perBlob)
	row := 0
	for b, c := range centres {
		for p := 0; p < perBlob; p++ {
			for j := 0; j < dim; j++ {
				X.Set(row, j, c[j]+rng.NormFloat64()*std)
			}
			truth = append(truth, b)
			row++
		}
	}
	return X, truth
}

// OrthogonalCentres returns k centres in dim dimensions, each a scaled basis
// vector, so every pair is equally far apart.
func OrthogonalCentres(k, dim int, scale float64) [][]float64 {
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, dim)
		out[i][i%dim] = scale
	}
	return out
}

// Fixture describes a synthetic feature-extraction output written into a
// MemoryFileSystem.
type Fixture struct {
	EmbeddingsPath string
	MetadataPath   string
	ImagePaths     []string
}

// WriteFixture writes embeddings.npy, an aligned metadata CSV and one small
// PNG per row under root. Row i lives in the directory named labels[i], in
// the Gravity Spy {IFO}_{ID}_spectrogram_{dur}.png layout. The metadata label
// column holds the observing-run directory, as the buggy extractor did.
func WriteFixture(t testing.TB, mfs *fsutil.MemoryFileSystem, root string, X *mat.Dense, labels []string) Fixture {
	t.Helper()
	rows, _ := X.Dims()
	if rows != len(labels) {
		t.Fatalf("fixture has %d rows and %d labels", rows, len(labels))
	}

	fx := Fixture{
		EmbeddingsPath: path.Join(root, "embeddings.npy"),
		MetadataPath:   path.Join(root, "embeddings_metadata.csv"),
	}

	var buf bytes.Buffer
	AssertNoError(t, npyio.Write(&buf, X))
	mfs.WriteFile(fx.EmbeddingsPath, buf.Bytes())

	var meta strings.Builder
	meta.WriteString("path,label\n")
	for i, label := range labels {
		ifo := "H1"
		if i%2 == 1 {
			ifo = "L1"
		}
		p := path.Join(root, "images", "H1L1", label, fmt.Sprintf("%s_id%05d_spectrogram_1.0.png", ifo, i))
		fmt.Fprintf(&meta, "%s,H1L1\n", p)
		mfs.WriteFile(p, TinyPNG(t, uint8(i)))
		fx.ImagePaths = append(fx.ImagePaths, p)
	}
	mfs.WriteFile(fx.MetadataPath, []byte(meta.String()))
	return fx
}

// TinyPNG returns an 8×8 grey PNG of the given shade.
func TinyPNG(t testing.TB, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: shade + uint8(x*y)})
		}
	}
	var buf bytes.Buffer
	AssertNoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
