package monitor

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/bodyfilter/internal/filterdb"
)

// SaveRunReport renders per-frame classification counts as an HTML line
// chart. One series per class, frame index on the X axis.
func SaveRunReport(path, runID string, frames []filterdb.FrameStats) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames recorded for run %s", runID)
	}

	x := make([]string, len(frames))
	self := make([]opts.LineData, len(frames))
	shadow := make([]opts.LineData, len(frames))
	background := make([]opts.LineData, len(frames))
	for i, f := range frames {
		x[i] = fmt.Sprintf("%d", f.FrameIndex)
		self[i] = opts.LineData{Value: f.SelfPixels}
		shadow[i] = opts.LineData{Value: f.ShadowPixels}
		background[i] = opts.LineData{Value: f.BackgroundPixels}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Filter Run Report", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Classification per frame", Subtitle: fmt.Sprintf("run=%s frames=%d", runID, len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "pixels"}),
	)
	line.SetXAxis(x).
		AddSeries("self", self).
		AddSeries("shadow", shadow).
		AddSeries("background", background)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}
