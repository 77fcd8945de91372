package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Brownie44l1/fkp-api/internal/model"
)

// ChartOptions tweaks ChartHTML output.
type ChartOptions struct {
	Title string
	// AssetsHost overrides where the page loads echarts.min.js from.
	AssetsHost string
}

// ChartHTML writes a standalone HTML page with an interactive scatter of pts.
func ChartHTML(w io.Writer, pts []model.Point, size int, o ChartOptions) error {
	if len(pts) == 0 {
		return fmt.Errorf("no keypoints to chart")
	}

	data := make([]opts.ScatterData, len(pts))
	for i, pt := range pts {
		data[i] = opts.ScatterData{
			Name:  strconv.Itoa(i),
			Value: []interface{}{pt.X, flip(pt.Y, size)},
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Facial keypoints",
			Width:      "640px",
			Height:     "640px",
			AssetsHost: o.AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: fmt.Sprintf("%d keypoints, %dx%d input", len(pts), size, size)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: size, Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: size, Name: "y (px)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("keypoints", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
