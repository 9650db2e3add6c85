package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/render"
	"github.com/banshee-data/glitch.audit/internal/report"
)

// Figure file names.
const (
	ScatterByClusterFile = "umap_by_cluster.png"
	ScatterByLabelFile   = "umap_by_label.png"
	DashboardFile        = "umap_interactive.html"
)

// DeepDiveDir is the directory holding one cluster's deep-dive figures.
func DeepDiveDir(outputDir string, clusterID int) string {
	return filepath.Join(outputDir, fmt.Sprintf("cluster_%d_deep_dive", clusterID))
}

type figureJob struct {
	fsys            fsutil.FileSystem
	paths           config.Paths
	settings        config.Settings
	rows            []report.Row
	assignments     []audit.Assignment
	skipInteractive bool
}

// render writes every figure and returns the written paths plus the
// requested deep-dive ids that were not in the clustering.
func (j figureJob) render(ctx context.Context) ([]string, []int, error) {
	v := j.settings.Visualization
	seed := j.settings.Seed
	figDir := j.paths.FiguresDir()
	if _, err := fsutil.EnsureDir(j.fsys, figDir); err != nil {
		return nil, nil, err
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := fn(&buf); err != nil {
			return fmt.Errorf("render %s: %w", filepath.Base(name), err)
		}
		if err := fsutil.WriteTo(j.fsys, name, func(w io.Writer) error {
			_, err := buf.WriteTo(w)
			return err
		}); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		monitoring.Logf("[viz] saved %s", name)
		written = append(written, name)
		return nil
	}

	for _, sc := range []struct {
		file string
		by   render.ColorBy
	}{
		{ScatterByClusterFile, render.ByCluster},
		{ScatterByLabelFile, render.ByLabel},
	} {
		o := render.ScatterOptions{ColorBy: sc.by, SampleSize: v.ScatterSampleSize, PointSize: v.PointSize, DPI: v.FigureDPI, Seed: seed}
		if err := write(filepath.Join(figDir, sc.file), func(w io.Writer) error { return render.ScatterPNG(w, j.rows, o) }); err != nil {
			return written, nil, err
		}
	}

	var skipped []int
	for _, id := range j.settings.DeepDiveClusters {
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}
		if id == audit.Noise || !audit.HasCluster(j.assignments, id) {
			monitoring.Warnf("[viz] cluster %d not found, skipping deep dive", id)
			skipped = append(skipped, id)
			continue
		}
		dir, err := fsutil.EnsureDir(j.fsys, DeepDiveDir(j.paths.OutputDir, id))
		if err != nil {
			return written, skipped, err
		}

		sheet := render.SheetOptions{TopKLabels: v.TopKLabels, SamplesPerLabel: v.SamplesPerLabel, ThumbSize: v.HoverImageSize, Seed: seed}
		err = write(filepath.Join(dir, fmt.Sprintf("cluster%d_contact_sheet.png", id)), func(w io.Writer) error {
			return render.ContactSheet(w, j.fsys, j.rows, id, sheet)
		})
		if err != nil {
			return written, skipped, err
		}

		strip := render.StripOptions{MaxPanels: v.StripMaxPanels, DPI: v.FigureDPI}
		stripPath := filepath.Join(dir, fmt.Sprintf("cluster%d_intensity_strip.png", id))
		err = write(stripPath, func(w io.Writer) error {
			return render.IntensityStrip(w, j.fsys, j.rows, id, strip)
		})
		if errors.Is(err, render.ErrEmptyCluster) {
			monitoring.Warnf("[viz] skipping intensity strip: %v", err)
			continue
		}
		if err != nil {
			return written, skipped, err
		}
	}

	if !j.skipInteractive {
		o := render.DashboardOptions{SampleSize: v.DashboardSampleSize, Seed: seed, IncludeImages: true, HoverImageSize: v.HoverImageSize}
		err := write(filepath.Join(figDir, DashboardFile), func(w io.Writer) error {
			return render.Dashboard(w, j.fsys, j.rows, o)
		})
		if err != nil {
			return written, skipped, err
		}
	}
	return written, skipped, nil
}
