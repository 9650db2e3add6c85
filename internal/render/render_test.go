package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/report"
	"github.com/banshee-data/glitch.audit/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

// fixtureRows puts len(shades) rows into cluster 0 and two rows into noise,
// with one image per row written to mfs.
func fixtureRows(t *testing.T, mfs *fsutil.MemoryFileSystem, shades []uint8) []report.Row {
	t.Helper()
	var rows []report.Row
	for i, shade := range shades {
		label := "Blip"
		if i%3 == 0 {
			label = "Koi_Fish"
		}
		p := fmt.Sprintf("/img/%s/H1_id%03d_spectrogram_1.0.png", label, i)
		mfs.WriteFile(p, testutil.TinyPNG(t, shade))
		rows = append(rows, report.Row{
			ID: fmt.Sprintf("id%03d", i), Path: p, Label: label, Interferometer: "H1",
			X: float64(i), Y: float64(i % 4), ClusterID: 0, Probability: 1,
		})
	}
	for i := 0; i < 2; i++ {
		p := fmt.Sprintf("/img/Blip/L1_noise%d_spectrogram_1.0.png", i)
		mfs.WriteFile(p, testutil.TinyPNG(t, 5))
		rows = append(rows, report.Row{ID: fmt.Sprintf("noise%d", i), Path: p, Label: "Blip", Interferometer: "L1", X: -5, Y: -5, ClusterID: -1})
	}
	return rows
}

func decodeConfig(t *testing.T, data []byte) image.Config {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return cfg
}

func TestSampleRows(t *testing.T) {
	rows := make([]report.Row, 50)
	for i := range rows {
		rows[i].ID = fmt.Sprint(i)
	}

	t.Run("small input untouched", func(t *testing.T) {
		assert.Len(t, sampleRows(rows, 100, 1), 50)
		assert.Len(t, sampleRows(rows, 0, 1), 50)
	})

	t.Run("seeded and order preserving", func(t *testing.T) {
		a := sampleRows(rows, 10, 42)
		b := sampleRows(rows, 10, 42)
		require.Len(t, a, 10)
		assert.Empty(t, cmp.Diff(a, b))
		for i := 1; i < len(a); i++ {
			var prev, cur int
			fmt.Sscan(a[i-1].ID, &prev)
			fmt.Sscan(a[i].ID, &cur)
			assert.Less(t, prev, cur)
		}
	})
}

func TestGroupRows(t *testing.T) {
	rows := []report.Row{
		{ClusterID: 2, Label: "Blip"},
		{ClusterID: -1, Label: "Whistle"},
		{ClusterID: 0, Label: "Blip"},
		{ClusterID: 2, Label: "Koi_Fish"},
		{ClusterID: 0, Label: "Koi_Fish"},
		{ClusterID: 0, Label: "Blip"},
	}

	t.Run("by cluster puts noise first", func(t *testing.T) {
		groups := groupRows(rows, ByCluster)
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.name
		}
		assert.Equal(t, []string{"noise", "cluster 0", "cluster 2"}, names)
		assert.True(t, groups[0].noise)
		assert.Equal(t, noiseColor, groups[0].color)
		assert.Len(t, groups[1].rows, 3)
		assert.NotEqual(t, groups[1].color, groups[2].color)
	})

	t.Run("by label orders by size", func(t *testing.T) {
		groups := groupRows(rows, ByLabel)
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.name
			assert.False(t, g.noise)
		}
		assert.Equal(t, []string{"Blip", "Koi_Fish", "Whistle"}, names)
	})
}

func TestPalette(t *testing.T) {
	assert.Nil(t, generateColors(0))

	colors := generateColors(12)
	seen := make(map[color.RGBA]bool)
	for _, c := range colors {
		assert.Equal(t, uint8(255), c.A)
		seen[c] = true
	}
	assert.Len(t, seen, 12)

	r, g, b := hslToRGB(0, 1, 0.5)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
	r, g, b = hslToRGB(0.5, 0, 0.5)
	assert.Equal(t, [3]uint8{128, 128, 128}, [3]uint8{r, g, b})

	assert.Equal(t, "#d3d3d3", hexColor(noiseColor))
}

func TestScatterPNG(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	rows := fixtureRows(t, mfs, []uint8{10, 20, 30, 40, 50, 60})

	for _, by := range []ColorBy{ByCluster, ByLabel} {
		t.Run(string(by), func(t *testing.T) {
			var buf bytes.Buffer
			err := ScatterPNG(&buf, rows, ScatterOptions{ColorBy: by, SampleSize: 5, PointSize: 6, DPI: 20, Seed: 42})
			require.NoError(t, err)
			cfg := decodeConfig(t, buf.Bytes())
			assert.Equal(t, 200, cfg.Width)
			assert.Equal(t, 160, cfg.Height)
		})
	}

	t.Run("no rows", func(t *testing.T) {
		err := ScatterPNG(&bytes.Buffer{}, nil, ScatterOptions{DPI: 20})
		assert.True(t, errors.Is(err, ErrEmptyCluster))
	})
}

func TestContactSheet(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	rows := fixtureRows(t, mfs, []uint8{10, 20, 30, 40, 50, 60, 70})
	rows[1].Path = "/img/missing.png"

	opts := SheetOptions{TopKLabels: 6, SamplesPerLabel: 5, ThumbSize: 32, Seed: 42}

	t.Run("one row per label", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ContactSheet(&buf, mfs, rows, 0, opts))
		cfg := decodeConfig(t, buf.Bytes())
		assert.Equal(t, sheetTitleH+2*(sheetLabelH+32+sheetPad)+sheetPad, cfg.Height)
		assert.GreaterOrEqual(t, cfg.Width, sheetPad+5*(32+sheetPad))
	})

	t.Run("top k limits rows", func(t *testing.T) {
		o := opts
		o.TopKLabels = 1
		var buf bytes.Buffer
		require.NoError(t, ContactSheet(&buf, mfs, rows, 0, o))
		cfg := decodeConfig(t, buf.Bytes())
		assert.Equal(t, sheetTitleH+(sheetLabelH+32+sheetPad)+sheetPad, cfg.Height)
	})

	t.Run("deterministic", func(t *testing.T) {
		var a, b bytes.Buffer
		require.NoError(t, ContactSheet(&a, mfs, rows, 0, opts))
		require.NoError(t, ContactSheet(&b, mfs, rows, 0, opts))
		assert.Equal(t, a.Bytes(), b.Bytes())
	})

	t.Run("unknown cluster", func(t *testing.T) {
		err := ContactSheet(&bytes.Buffer{}, mfs, rows, 33, opts)
		assert.True(t, errors.Is(err, ErrEmptyCluster))
		assert.Contains(t, err.Error(), "cluster 33")
	})
}

func TestEvenSample(t *testing.T) {
	cases := []struct {
		n, m int
		want []int
	}{
		{10, 4, []int{0, 3, 6, 9}},
		{3, 5, []int{0, 1, 2}},
		{5, 1, []int{0}},
		{12, 12, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
		{100, 3, []int{0, 49, 99}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d of %d", tc.m, tc.n), func(t *testing.T) {
			assert.Equal(t, tc.want, evenSample(tc.n, tc.m))
		})
	}
}

func TestImageIntensity(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 10
	}
	assert.Equal(t, 120.0, imageIntensity(img))

	rgb := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgb.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	assert.Equal(t, 6.0, imageIntensity(rgb))
}

func TestOrderByIntensity(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	rows := fixtureRows(t, mfs, []uint8{90, 10, 50, 30})[:4]
	rows = append(rows, report.Row{ID: "gone", Path: "/img/gone.png"})

	ordered := orderByIntensity(mfs, rows)
	ids := make([]string, len(ordered))
	for i, s := range ordered {
		ids[i] = s.row.ID
	}
	assert.Equal(t, []string{"id001", "id003", "id002", "id000"}, ids)
}

func TestIntensityStrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	rows := fixtureRows(t, mfs, []uint8{10, 20, 30, 40, 50})

	t.Run("renders", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, IntensityStrip(&buf, mfs, rows, 0, StripOptions{MaxPanels: 3, DPI: 20}))
		cfg := decodeConfig(t, buf.Bytes())
		assert.Equal(t, 120, cfg.Width)
		assert.InDelta(t, 52, cfg.Height, 1)
	})

	t.Run("unknown cluster", func(t *testing.T) {
		err := IntensityStrip(&bytes.Buffer{}, mfs, rows, 7, StripOptions{MaxPanels: 3, DPI: 20})
		assert.True(t, errors.Is(err, ErrEmptyCluster))
	})

	t.Run("no readable images", func(t *testing.T) {
		broken := []report.Row{{Path: "/nope/a.png", ClusterID: 1}, {Path: "/nope/b.png", ClusterID: 1}}
		err := IntensityStrip(&bytes.Buffer{}, mfs, broken, 1, StripOptions{MaxPanels: 3, DPI: 20})
		assert.True(t, errors.Is(err, ErrEmptyCluster))
	})
}

func TestDashboard(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	rows := fixtureRows(t, mfs, []uint8{10, 20, 30, 40})

	t.Run("with hover images", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Dashboard(&buf, mfs, rows, DashboardOptions{SampleSize: 100, Seed: 42, IncludeImages: true, HoverImageSize: 16}))
		out := buf.String()
		assert.Contains(t, out, "cluster 0")
		assert.Contains(t, out, "noise")
		assert.Contains(t, out, "Koi_Fish")
		assert.Contains(t, out, "data:image/png;base64,")
	})

	t.Run("without hover images", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Dashboard(&buf, mfs, rows, DashboardOptions{SampleSize: 3, Seed: 42}))
		assert.False(t, strings.Contains(buf.String(), "data:image/png;base64,"))
	})

	t.Run("no rows", func(t *testing.T) {
		err := Dashboard(&bytes.Buffer{}, mfs, nil, DashboardOptions{})
		assert.True(t, errors.Is(err, ErrEmptyCluster))
	})
}

func TestThumbnail(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	th := thumbnail(src, 10)
	assert.Equal(t, image.Rect(0, 0, 10, 5), th.Bounds())

	small := thumbnail(image.NewGray(image.Rect(0, 0, 4, 4)), 10)
	assert.Equal(t, image.Rect(0, 0, 4, 4), small.Bounds())

	uri, err := dataURI(small)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
