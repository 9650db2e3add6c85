package render

import (
	"fmt"
	"io"

	"github.com/banshee-data/glitch.audit/internal/report"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ScatterOptions configures ScatterPNG.
type ScatterOptions struct {
	ColorBy    ColorBy
	SampleSize int // 0 plots every row
	PointSize  int // glyph diameter in points
	DPI        int
	Seed       int64
}

// ScatterPNG draws the global manifold scatter as a PNG. Noise is drawn in
// light grey underneath the clusters at half size. A legend is added only
// when there are at most 20 groups.
func ScatterPNG(w io.Writer, rows []report.Row, o ScatterOptions) error {
	if len(rows) == 0 {
		return fmt.Errorf("scatter: %w", ErrEmptyCluster)
	}
	sampled := sampleRows(rows, o.SampleSize, o.Seed)

	p := plot.New()
	p.Title.Text = message.NewPrinter(language.English).Sprintf("Gravity Spy manifold by %s (n=%d)", o.ColorBy, len(sampled))
	p.X.Label.Text = "Manifold 1"
	p.Y.Label.Text = "Manifold 2"

	groups := groupRows(sampled, o.ColorBy)
	for _, g := range groups {
		pts := make(plotter.XYs, len(g.rows))
		for i, r := range g.rows {
			pts[i] = plotter.XY{X: r.X, Y: r.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("scatter %s: %w", g.name, err)
		}
		radius := vg.Points(float64(o.PointSize) / 2)
		if g.noise {
			radius /= 2
		}
		sc.GlyphStyle.Color = g.color
		sc.GlyphStyle.Radius = radius
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		if len(groups) <= legendLimit {
			p.Legend.Add(g.name, sc)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return writePNG(w, p, 10*vg.Inch, 8*vg.Inch, o.DPI)
}
