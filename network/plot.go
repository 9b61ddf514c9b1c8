package network

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

var historyPalette = []color.Color{
	color.RGBA{R: 20, G: 80, B: 200, A: 255},
	color.RGBA{R: 200, G: 30, B: 30, A: 255},
	color.RGBA{R: 40, G: 140, B: 40, A: 255},
	color.RGBA{R: 150, G: 90, B: 10, A: 255},
}

// PlotHistory draws one line per metric of h against the epoch number and
// saves the chart to path. The image format follows the file extension.
func PlotHistory(h History, title, path string) error {
	if h.Epochs() == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "value"
	p.Add(plotter.NewGrid())

	for i, key := range h.Keys() {
		xys := make(plotter.XYs, len(h[key]))
		for e, v := range h[key] {
			xys[e] = plotter.XY{X: float64(e + 1), Y: v}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to plot %s", key)
		}
		line.Color = historyPalette[i%len(historyPalette)]
		line.Width = vg.Points(1.2)
		if i >= len(historyPalette) {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(key, line)
	}
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save history plot to %s", path)
	}
	return nil
}
