// Package render draws predicted keypoints as a PNG scatter (gonum/plot) or
// an interactive HTML chart (go-echarts). Both flip the y axis so a face
// reads upright: image row 0 is drawn at the top.
package render

import (
	"fmt"
	"image/color"
	"io"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Brownie44l1/fkp-api/internal/model"
)

// PlotSize is the edge length of rendered PNGs.
const PlotSize = 6 * vg.Inch

// PlotPNG writes a scatter of pts over a size×size image frame.
func PlotPNG(w io.Writer, pts []model.Point, size int, title string) error {
	if len(pts) == 0 {
		return fmt.Errorf("no keypoints to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"

	xys := make(plotter.XYs, len(pts))
	labels := make([]string, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: float64(pt.X), Y: flip(pt.Y, size)}
		labels[i] = strconv.Itoa(i)
	}

	frame, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: 0}, {X: float64(size), Y: 0},
		{X: float64(size), Y: float64(size)}, {X: 0, Y: float64(size)}, {X: 0, Y: 0},
	})
	if err != nil {
		return err
	}
	frame.Color = color.Gray{Y: 160}
	frame.Width = vg.Points(0.5)
	p.Add(frame)

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)

	lbls, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return err
	}
	for i := range lbls.TextStyle {
		lbls.TextStyle[i].Font.Size = vg.Points(5)
	}
	p.Add(lbls)

	wt, err := p.WriterTo(PlotSize, PlotSize, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

func flip(y float32, size int) float64 {
	return float64(size) - float64(y)
}
