package monitor

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix is where rendered pages load echarts.min.js from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// maxChartPoints caps series length; longer traces are strided.
const maxChartPoints = 4000

func strided(points []Point, limit int) []Point {
	if len(points) <= limit {
		return points
	}
	stride := (len(points) + limit - 1) / limit
	out := make([]Point, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	return out
}

// RenderTraceCharts writes an HTML page with force and removal line charts.
func RenderTraceCharts(w io.Writer, title string, points []Point) error {
	pts := strided(points, maxChartPoints)
	x := make([]string, len(pts))
	force := make([]opts.LineData, len(pts))
	removed := make([]opts.LineData, len(pts))
	contacts := make([]opts.LineData, len(pts))
	for i, p := range pts {
		x[i] = strconv.FormatFloat(p.Elapsed.Seconds(), 'f', 3, 64)
		force[i] = opts.LineData{Value: p.Force}
		removed[i] = opts.LineData{Value: p.Cumulative}
		contacts[i] = opts.LineData{Value: p.Contacts}
	}

	newLine := func(name, unit string) *charts.Line {
		l := charts.NewLine()
		l.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
			charts.WithTitleOpts(opts.Title{Title: name, Subtitle: fmt.Sprintf("%s points=%d", title, len(pts))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: unit}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		)
		return l
	}

	forceChart := newLine("Force", "N")
	forceChart.SetXAxis(x).AddSeries("force", force)
	removedChart := newLine("Cumulative removal", "density")
	removedChart.SetXAxis(x).AddSeries("removed", removed)
	contactChart := newLine("Contacts", "voxels")
	contactChart.SetXAxis(x).AddSeries("contacts", contacts)

	page := components.NewPage()
	page.PageTitle = title
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(forceChart, removedChart, contactChart)
	return page.Render(w)
}

// RenderSliceChart writes an HTML heatmap of a density slice.
func RenderSliceChart(w io.Writer, title string, s Slice) error {
	xs := make([]string, s.Nx)
	for i := range xs {
		xs[i] = strconv.Itoa(i)
	}
	ys := make([]string, s.Ny)
	for j := range ys {
		ys[j] = strconv.Itoa(j)
	}
	data := make([]opts.HeatMapData, 0, len(s.Values))
	for j := 0; j < s.Ny; j++ {
		for i := 0; i < s.Nx; i++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, s.Z(i, j)}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "800px", Height: "800px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Density k=%d", s.K), Subtitle: fmt.Sprintf("%s removed=%d", title, s.Removed())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "I"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "J"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries("density", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
