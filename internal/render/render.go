// Package render draws the figures of an audit run: static manifold
// scatters, the interactive dashboard, per-cluster contact sheets and
// intensity-ordered strips.
//
// Every renderer writes to an io.Writer and reads spectrograms through an
// fsutil.FileSystem. Sampling is seeded so a rerun produces the same figure.
package render

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand/v2"
	"slices"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/report"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrEmptyCluster is returned by the per-cluster figures when the requested
// cluster has no members (or no readable images).
var ErrEmptyCluster = errors.New("cluster has no renderable samples")

// ColorBy selects how scatter points are grouped and coloured.
type ColorBy string

const (
	ByCluster ColorBy = "cluster"
	ByLabel   ColorBy = "label"
)

// sampleRows returns at most n rows picked with a seeded generator. The
// picked rows keep their original relative order.
func sampleRows(rows []report.Row, n int, seed int64) []report.Row {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	idx := rng.Perm(len(rows))[:n]
	slices.Sort(idx)
	out := make([]report.Row, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// clusterRows returns the rows assigned to id, in table order.
func clusterRows(rows []report.Row, id int) []report.Row {
	var out []report.Row
	for _, r := range rows {
		if r.ClusterID == id {
			out = append(out, r)
		}
	}
	return out
}

func loadImage(fsys fsutil.FileSystem, path string) (image.Image, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// writePNG rasterises p at the given physical size and resolution.
func writePNG(w io.Writer, p *plot.Plot, width, height vg.Length, dpi int) error {
	c := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
