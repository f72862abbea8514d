// Package monitor renders filter output buffers and run statistics into
// inspectable artifacts for tuning sessions.
package monitor

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// bufferGrid adapts a row-major pixel buffer to the plotter grid
// interface. Row 0 is the top image row, so Y is flipped to keep the
// plot oriented like the camera image.
type bufferGrid struct {
	width  int
	height int
	values []float64
}

func (g bufferGrid) Dims() (c, r int)   { return g.width, g.height }
func (g bufferGrid) X(c int) float64    { return float64(c) }
func (g bufferGrid) Y(r int) float64    { return float64(r) }
func (g bufferGrid) Z(c, r int) float64 { return g.values[(g.height-1-r)*g.width+c] }

func newBufferGrid(width, height int, n int) (bufferGrid, error) {
	if width <= 0 || height <= 0 {
		return bufferGrid{}, fmt.Errorf("invalid plot dimensions %dx%d", width, height)
	}
	if n != width*height {
		return bufferGrid{}, fmt.Errorf("buffer length %d does not match %dx%d", n, width, height)
	}
	return bufferGrid{width: width, height: height, values: make([]float64, n)}, nil
}

func savePlot(path, title string, grid bufferGrid, min, max float64) error {
	hm := plotter.NewHeatMap(grid, moreland.SmoothBlueRed().Palette(255))
	hm.Min = min
	hm.Max = max

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Add(hm)

	width := vg.Points(float64(grid.width) * 4)
	height := vg.Points(float64(grid.height) * 4)
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}
	if height < 4*vg.Inch {
		height = 4 * vg.Inch
	}
	return p.Save(width, height, path)
}

// SaveDepthPNG writes a normalized depth buffer as a heat map image.
// Values are expected in [0, 1]; 1.0 (far clip) renders at the top of
// the colour range.
func SaveDepthPNG(path string, width, height int, depth []float32) error {
	grid, err := newBufferGrid(width, height, len(depth))
	if err != nil {
		return err
	}
	for i, v := range depth {
		grid.values[i] = float64(v)
	}
	return savePlot(path, "depth", grid, 0, 1)
}

// SaveLabelPNG writes a label buffer as a heat map image. Background and
// shadow occupy the low end of the range; mesh handles spread across the
// rest.
func SaveLabelPNG(path string, width, height int, labels []uint32) error {
	grid, err := newBufferGrid(width, height, len(labels))
	if err != nil {
		return err
	}
	max := 2.0
	for i, v := range labels {
		grid.values[i] = float64(v)
		if grid.values[i] > max {
			max = grid.values[i]
		}
	}
	return savePlot(path, "labels", grid, 0, max)
}
