package render

import (
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/report"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// StripOptions configures IntensityStrip.
type StripOptions struct {
	MaxPanels int
	DPI       int
}

// scored is a cluster member with the total pixel intensity of its image.
type scored struct {
	row       report.Row
	intensity float64
}

// imageIntensity sums the 8-bit red, green and blue channels of every pixel.
func imageIntensity(img image.Image) float64 {
	b := img.Bounds()
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += float64(r>>8 + g>>8 + bl>>8)
		}
	}
	return sum
}

// orderByIntensity scores every readable member image and sorts ascending.
// Equal intensities keep table order.
func orderByIntensity(fsys fsutil.FileSystem, members []report.Row) []scored {
	out := make([]scored, 0, len(members))
	failed := 0
	for _, r := range members {
		img, err := loadImage(fsys, r.Path)
		if err != nil {
			failed++
			continue
		}
		out = append(out, scored{row: r, intensity: imageIntensity(img)})
	}
	if failed > 0 {
		monitoring.Warnf("[viz] %d of %d images could not be loaded for intensity ordering", failed, len(members))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].intensity < out[j].intensity })
	return out
}

// evenSample picks m indices spread evenly over [0, n), always including the
// first and last. When n <= m every index is returned.
func evenSample(n, m int) []int {
	if n <= m {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if m == 1 {
		return []int{0}
	}
	idx := make([]int, m)
	for i := range idx {
		idx[i] = int(float64(i) * float64(n-1) / float64(m-1))
	}
	return idx
}

// IntensityStrip lays out images of one cluster from dimmest to brightest.
// A smooth progression across the strip is evidence of a morphological
// continuum collapsed into one label.
func IntensityStrip(w io.Writer, fsys fsutil.FileSystem, rows []report.Row, clusterID int, o StripOptions) error {
	members := clusterRows(rows, clusterID)
	if len(members) == 0 {
		return fmt.Errorf("intensity strip for cluster %d: %w", clusterID, ErrEmptyCluster)
	}
	monitoring.Logf("[viz] computing intensities for %d images", len(members))
	ordered := orderByIntensity(fsys, members)
	if len(ordered) == 0 {
		return fmt.Errorf("intensity strip for cluster %d: no readable images: %w", clusterID, ErrEmptyCluster)
	}

	picks := evenSample(len(ordered), o.MaxPanels)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cluster %d - ordered by intensity (low to high)", clusterID)
	p.HideAxes()
	p.X.Min, p.X.Max = 0, float64(len(picks))
	p.Y.Min, p.Y.Max = 0, 1.3

	caption := plotter.XYLabels{}
	for i, k := range picks {
		s := ordered[k]
		img, err := loadImage(fsys, s.row.Path)
		if err != nil {
			monitoring.Warnf("[viz] %s became unreadable: %v", s.row.Path, err)
			continue
		}
		x := float64(i)
		p.Add(plotter.NewImage(img, x+0.05, 0, x+0.95, 1))
		caption.XYs = append(caption.XYs, plotter.XY{X: x + 0.5, Y: 1.05})
		caption.Labels = append(caption.Labels, s.row.Interferometer+"\n"+s.row.Label)
	}

	if len(caption.Labels) > 0 {
		labels, err := plotter.NewLabels(caption)
		if err != nil {
			return fmt.Errorf("strip captions: %w", err)
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].XAlign = draw.XCenter
		}
		p.Add(labels)
	}

	width := vg.Length(len(picks)) * 2 * vg.Inch
	return writePNG(w, p, width, 2.6*vg.Inch, o.DPI)
}
