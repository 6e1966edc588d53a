package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	forceColor   = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	removedColor = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	contactColor = color.RGBA{R: 60, G: 160, B: 80, A: 255}
)

// Plot file names written by WritePlots.
const (
	ForcePlotFile   = "force.png"
	RemovalPlotFile = "removal.png"
	ContactPlotFile = "contacts.png"
)

// WritePlots renders the force, cumulative removal and contact-count traces
// into dir and returns the paths written. An empty trace writes nothing.
func WritePlots(dir string, title string, points []Point) ([]string, error) {
	if len(points) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	force := make(plotter.XYs, len(points))
	removed := make(plotter.XYs, len(points))
	contacts := make(plotter.XYs, len(points))
	for i, p := range points {
		x := p.Elapsed.Seconds()
		force[i] = plotter.XY{X: x, Y: p.Force}
		removed[i] = plotter.XY{X: x, Y: p.Cumulative}
		contacts[i] = plotter.XY{X: x, Y: float64(p.Contacts)}
	}

	specs := []struct {
		file, title, ylabel string
		pts                 plotter.XYs
		col                 color.Color
	}{
		{ForcePlotFile, title + " - Force", "Force (N)", force, forceColor},
		{RemovalPlotFile, title + " - Cumulative Removal", "Density removed", removed, removedColor},
		{ContactPlotFile, title + " - Contacts", "Intersected voxels", contacts, contactColor},
	}

	var written []string
	for _, s := range specs {
		p := plot.New()
		p.Title.Text = s.title
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = s.ylabel

		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return written, err
		}
		line.Color = s.col
		line.Width = vg.Points(1)
		p.Add(line)

		path := filepath.Join(dir, s.file)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
			return written, fmt.Errorf("save %s: %w", s.file, err)
		}
		written = append(written, path)
	}
	diagf("wrote %d plots from %d points to %s", len(written), len(points), dir)
	return written, nil
}

// WriteSlicePlot renders a density slice as a heatmap PNG at path.
func WriteSlicePlot(path string, title string, s Slice) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	hm := plotter.NewHeatMap(s, palette.Heat(16, 1))
	hm.Min, hm.Max = 0, 1

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Density k=%d (%d removed)", title, s.K, s.Removed())
	p.X.Label.Text = "I (voxels)"
	p.Y.Label.Text = "J (voxels)"
	p.Add(hm)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save slice plot: %w", err)
	}
	diagf("wrote density slice k=%d to %s", s.K, path)
	return nil
}
