package render

import (
	"fmt"
	"html"
	"io"
	"path"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/report"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// DashboardOptions configures Dashboard.
type DashboardOptions struct {
	SampleSize     int
	Seed           int64
	IncludeImages  bool
	HoverImageSize int
}

// hoverFormatter renders a point's value tuple
// [x, y, label, cluster, file, thumbnail] as the tooltip body.
const hoverFormatter = `function (p) {
  var v = p.value;
  var s = '<b>Label:</b> ' + v[2] + '<br/><b>Cluster:</b> ' + v[3] + '<br/><b>File:</b> ' + v[4];
  if (v[5]) { s += '<br/><br/><img src="' + v[5] + '" style="max-width:240px;"/>'; }
  return s;
}`

// Dashboard writes a self-contained HTML page with two linked scatter
// charts of the manifold, coloured by cluster and by label. Hovering a point
// shows its label, cluster, file name and, with IncludeImages, a thumbnail.
func Dashboard(w io.Writer, fsys fsutil.FileSystem, rows []report.Row, o DashboardOptions) error {
	if len(rows) == 0 {
		return fmt.Errorf("dashboard: %w", ErrEmptyCluster)
	}
	sampled := sampleRows(rows, o.SampleSize, o.Seed)

	thumbs := make(map[string]string)
	if o.IncludeImages {
		monitoring.Logf("[viz] encoding %d thumbnails for hover", len(sampled))
		failed := 0
		for _, r := range sampled {
			uri, err := hoverImage(fsys, r.Path, o.HoverImageSize)
			if err != nil {
				failed++
				continue
			}
			thumbs[r.Path] = uri
		}
		if failed > 0 {
			monitoring.Warnf("[viz] %d of %d hover images could not be encoded", failed, len(sampled))
		}
	}

	page := components.NewPage()
	page.PageTitle = "Gravity Spy manifold explorer"
	page.AddCharts(
		dashboardChart(sampled, ByCluster, thumbs),
		dashboardChart(sampled, ByLabel, thumbs),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}

func dashboardChart(rows []report.Row, by ColorBy, thumbs map[string]string) *charts.Scatter {
	groups := groupRows(rows, by)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gravity Spy manifold explorer", Theme: "dark", Width: "1000px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Manifold by %s", by), Subtitle: fmt.Sprintf("n=%d", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item", Enterable: opts.Bool(true), Formatter: opts.FuncOpts(hoverFormatter)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(groups) <= legendLimit)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Manifold 1", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Manifold 2", NameLocation: "middle", NameGap: 30, Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)

	for _, g := range groups {
		data := make([]opts.ScatterData, len(g.rows))
		for i, r := range g.rows {
			data[i] = opts.ScatterData{Value: []interface{}{
				r.X, r.Y,
				html.EscapeString(r.Label),
				r.ClusterID,
				html.EscapeString(path.Base(r.Path)),
				thumbs[r.Path],
			}}
		}
		scatter.AddSeries(g.name, data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(g.color)}),
		)
	}
	return scatter
}

func hoverImage(fsys fsutil.FileSystem, p string, size int) (string, error) {
	img, err := loadImage(fsys, p)
	if err != nil {
		return "", err
	}
	return dataURI(thumbnail(img, size))
}
