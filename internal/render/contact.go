package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand/v2"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/report"
	"golang.org/x/image/draw"
)

// SheetOptions configures ContactSheet.
type SheetOptions struct {
	TopKLabels      int
	SamplesPerLabel int
	ThumbSize       int // cell edge in pixels
	Seed            int64
}

const (
	sheetPad    = 8
	sheetTitleH = 28
	sheetLabelH = 18
)

var (
	sheetInk   = color.RGBA{A: 255}
	sheetMuted = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	sheetEmpty = color.RGBA{R: 235, G: 235, B: 235, A: 255}
)

// ContactSheet draws a grid of spectrograms from one cluster: one row per
// label (the TopKLabels most frequent), SamplesPerLabel seeded picks per row.
// Many rows of similar-looking images point at over-splitting. Unreadable
// images leave a "load error" cell and a warning.
func ContactSheet(w io.Writer, fsys fsutil.FileSystem, rows []report.Row, clusterID int, o SheetOptions) error {
	members := clusterRows(rows, clusterID)
	if len(members) == 0 {
		return fmt.Errorf("contact sheet for cluster %d: %w", clusterID, ErrEmptyCluster)
	}

	assigned := make([]audit.Assignment, len(members))
	byLabel := make(map[string][]report.Row)
	for i, r := range members {
		assigned[i] = audit.Assignment{ClusterID: r.ClusterID, Label: r.Label}
		byLabel[r.Label] = append(byLabel[r.Label], r)
	}
	dist := audit.LabelDistribution(assigned, clusterID)
	if len(dist) > o.TopKLabels {
		dist = dist[:o.TopKLabels]
	}

	title := fmt.Sprintf("Cluster %d - top %d labels of %d samples", clusterID, len(dist), len(members))
	cell := o.ThumbSize
	width := max(sheetPad+o.SamplesPerLabel*(cell+sheetPad), textWidth(title)+2*sheetPad)
	height := sheetTitleH + len(dist)*(sheetLabelH+cell+sheetPad) + sheetPad
	sheet := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(sheet, sheet.Bounds(), image.White, image.Point{}, draw.Src)
	drawText(sheet, sheetPad, sheetTitleH-10, sheetInk, title)

	rng := rand.New(rand.NewPCG(uint64(o.Seed), uint64(int64(clusterID))))
	failed := 0
	for row, lc := range dist {
		top := sheetTitleH + row*(sheetLabelH+cell+sheetPad)
		drawText(sheet, sheetPad, top+sheetLabelH-5, sheetInk, fmt.Sprintf("%s (n=%d)", lc.Label, lc.Count))

		candidates := byLabel[lc.Label]
		n := min(o.SamplesPerLabel, len(candidates))
		for col, pick := range rng.Perm(len(candidates))[:n] {
			cellRect := image.Rect(0, 0, cell, cell).Add(image.Pt(sheetPad+col*(cell+sheetPad), top+sheetLabelH))
			img, err := loadImage(fsys, candidates[pick].Path)
			if err != nil {
				failed++
				draw.Draw(sheet, cellRect, image.NewUniform(sheetEmpty), image.Point{}, draw.Src)
				drawText(sheet, cellRect.Min.X+4, cellRect.Min.Y+cell/2, sheetMuted, "load error")
				continue
			}
			thumb := thumbnail(img, cell)
			draw.Draw(sheet, thumb.Bounds().Add(cellRect.Min), thumb, image.Point{}, draw.Over)
		}
	}
	if failed > 0 {
		monitoring.Warnf("[viz] cluster %d contact sheet: %d images could not be loaded", clusterID, failed)
	}

	if err := png.Encode(w, sheet); err != nil {
		return fmt.Errorf("encode contact sheet: %w", err)
	}
	return nil
}
