package render

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/banshee-data/glitch.audit/internal/report"
)

// legendLimit is the largest number of groups that still gets a legend.
const legendLimit = 20

var noiseColor = color.RGBA{R: 211, G: 211, B: 211, A: 255}

// group is one coloured series of a scatter.
type group struct {
	name  string
	noise bool
	color color.RGBA
	rows  []report.Row
}

// groupRows splits rows into colour groups. Cluster groups are ordered by id
// with noise first so it is drawn underneath; label groups are ordered by
// size, largest first, then by name.
func groupRows(rows []report.Row, by ColorBy) []group {
	var groups []group
	switch by {
	case ByLabel:
		byLabel := make(map[string][]report.Row)
		for _, r := range rows {
			byLabel[r.Label] = append(byLabel[r.Label], r)
		}
		for label, members := range byLabel {
			groups = append(groups, group{name: label, rows: members})
		}
		sort.Slice(groups, func(i, j int) bool {
			if len(groups[i].rows) != len(groups[j].rows) {
				return len(groups[i].rows) > len(groups[j].rows)
			}
			return groups[i].name < groups[j].name
		})
	default:
		byID := make(map[int][]report.Row)
		for _, r := range rows {
			byID[r.ClusterID] = append(byID[r.ClusterID], r)
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			g := group{name: fmt.Sprintf("cluster %d", id), rows: byID[id]}
			if id < 0 {
				g.name = "noise"
				g.noise = true
			}
			groups = append(groups, g)
		}
	}

	palette := generateColors(len(groups))
	for i := range groups {
		if groups[i].noise {
			groups[i].color = noiseColor
			continue
		}
		groups[i].color = palette[i]
	}
	return groups
}

// generateColors creates n distinct colours. Hues advance by the golden
// ratio so neighbouring cluster ids do not get neighbouring hues.
func generateColors(n int) []color.RGBA {
	if n <= 0 {
		return nil
	}
	const phi = 0.6180339887498949
	colors := make([]color.RGBA, n)
	for i := 0; i < n; i++ {
		_, hue := math.Modf(float64(i) * phi)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hexColor formats c as #rrggbb for the HTML dashboard.
func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// hslToRGB converts HSL in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	to8 := func(v float64) uint8 { return uint8(math.Round(v * 255)) }
	return to8(hueToRGB(p, q, h+1.0/3.0)), to8(hueToRGB(p, q, h)), to8(hueToRGB(p, q, h-1.0/3.0))
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
