// Command bodyfilter runs the sensor self-filter against a synthetic
// robot scene and records per-frame classification statistics. It is the
// tuning harness: adjust padding and shadow parameters, replay frames,
// and inspect the resulting plots and report.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/bodyfilter/internal/config"
	"github.com/banshee-data/bodyfilter/internal/filterdb"
	"github.com/banshee-data/bodyfilter/internal/meshfilter"
	"github.com/banshee-data/bodyfilter/internal/meshfilter/monitor"
	"github.com/banshee-data/bodyfilter/internal/meshfilter/render"
	"github.com/banshee-data/bodyfilter/internal/version"
)

var (
	width      = flag.Int("width", 64, "Sensor image width in pixels")
	height     = flag.Int("height", 64, "Sensor image height in pixels")
	nearClip   = flag.Float64("near", 0.1, "Near clip distance in meters")
	farClip    = flag.Float64("far", 10.0, "Far clip distance in meters")
	frames     = flag.Int("frames", 10, "Number of frames to filter")
	encoding   = flag.String("encoding", "float32-meters", "Sensor depth encoding: float32-meters or fixed16")
	tuningFile = flag.String("tuning", "", "Optional JSON tuning config overriding filter parameters")
	dbFile     = flag.String("db", "bodyfilter.db", "Path to the SQLite database file")
	sensorID   = flag.String("sensor-id", "depthcam-0", "Sensor identifier recorded with each run")
	outDir     = flag.String("out", "", "Directory for depth/label plots and the run report (disabled when empty)")
	showVer    = flag.Bool("version", false, "Print version information and exit")
)

func parseEncoding(s string) (meshfilter.DepthEncoding, error) {
	switch s {
	case "float32-meters":
		return meshfilter.EncodingFloat32Meters, nil
	case "fixed16":
		return meshfilter.EncodingFixed16, nil
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}

// syntheticFrame fills a sensor frame with a flat wall at wallDepth and a
// nearer block in the upper-left quadrant, simulating an obstacle in
// front of the robot body.
func syntheticFrame(enc meshfilter.DepthEncoding, w, h int, wallDepth, blockDepth float32) meshfilter.SensorFrame {
	metric := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := wallDepth
			if x < w/4 && y < h/4 {
				d = blockDepth
			}
			metric[y*w+x] = d
		}
	}
	if enc == meshfilter.EncodingFloat32Meters {
		return meshfilter.SensorFrame{Encoding: enc, Float32: metric}
	}
	fixed := make([]uint16, len(metric))
	for i, m := range metric {
		fixed[i] = uint16(m * 1000)
	}
	return meshfilter.SensorFrame{Encoding: enc, Fixed16: fixed}
}

func run() error {
	enc, err := parseEncoding(*encoding)
	if err != nil {
		return err
	}

	params := meshfilter.SensorModelParams{
		Width:    *width,
		Height:   *height,
		NearClip: float32(*nearClip),
		FarClip:  float32(*farClip),
	}
	var tuning *config.TuningConfig
	if *tuningFile != "" {
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			return fmt.Errorf("load tuning config: %w", err)
		}
		params = tuning.SensorParams(params)
	}

	mf, err := meshfilter.New(meshfilter.Config{
		Sensor:  params,
		Backend: render.NewSoftwareBackend(),
	})
	if err != nil {
		return fmt.Errorf("start filter: %w", err)
	}
	defer mf.Close()
	if tuning != nil {
		tuning.Apply(mf)
	}

	// The robot body: a box torso ahead of the sensor and an arm panel
	// clipping the image corner.
	torso, err := mf.AddMesh(meshfilter.NewBoxGeometry(1.2, 0.8, 0.4))
	if err != nil {
		return err
	}
	panel, err := mf.AddMesh(meshfilter.NewQuadGeometry(0.5, 0.5))
	if err != nil {
		return err
	}
	log.Printf("scene meshes: torso=%d panel=%d", torso, panel)

	mf.SetTransformCallback(func(h meshfilter.MeshHandle) (meshfilter.Pose, bool) {
		switch h {
		case torso:
			return meshfilter.TranslationPose(0, 0, 2.0), true
		case panel:
			return meshfilter.TranslationPose(0.8, 0.8, 1.5), true
		}
		return meshfilter.Pose{}, false
	})

	db, err := filterdb.NewFilterDB(*dbFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr := filterdb.NewFilterRunManager(db, *sensorID)
	paramsJSON := fmt.Sprintf(`{"encoding":%q,"shadow_threshold":%g,"padding_scale":%g,"padding_offset":%g}`,
		enc, mf.ShadowThreshold(), mf.PaddingScale(), mf.PaddingOffset())
	runID, err := mgr.StartRun(paramsJSON)
	if err != nil {
		return err
	}

	n := *width * *height
	depth := make([]float32, n)
	labels := make([]uint32, n)
	for i := 0; i < *frames; i++ {
		// Obstacle drifts toward the sensor over the run.
		blockDepth := 1.5 - 0.05*float32(i)
		frame := syntheticFrame(enc, *width, *height, 1.8, blockDepth)

		start := time.Now()
		if err := mf.Filter(frame, true); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := mf.GetFilteredLabels(labels); err != nil {
			return fmt.Errorf("frame %d labels: %w", i, err)
		}
		elapsed := time.Since(start)

		background, shadow, self := meshfilter.CountLabels(labels)
		stats := filterdb.FrameStats{
			Encoding:         enc.String(),
			SelfPixels:       self,
			ShadowPixels:     shadow,
			BackgroundPixels: background,
			DurationNanos:    elapsed.Nanoseconds(),
		}
		if err := mgr.RecordFrame(stats); err != nil {
			return fmt.Errorf("record frame %d: %w", i, err)
		}
		log.Printf("frame %d: self=%d shadow=%d background=%d in %v",
			i, self, shadow, background, elapsed)
	}

	summary, err := mgr.FinishRun()
	if err != nil {
		return err
	}
	log.Printf("run %s: %d frames, mean self ratio %.4f, p95 %.4f",
		runID, summary.Frames, summary.MeanSelfRatio, summary.P95SelfRatio)

	if *outDir == "" {
		return nil
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	if err := mf.GetFilteredDepth(depth); err != nil {
		return err
	}
	if err := monitor.SaveDepthPNG(filepath.Join(*outDir, "filtered_depth.png"), *width, *height, depth); err != nil {
		return err
	}
	if err := monitor.SaveLabelPNG(filepath.Join(*outDir, "filtered_labels.png"), *width, *height, labels); err != nil {
		return err
	}
	recorded, err := db.ListFrames(runID)
	if err != nil {
		return err
	}
	reportPath := filepath.Join(*outDir, "report.html")
	if err := monitor.SaveRunReport(reportPath, runID, recorded); err != nil {
		return err
	}
	log.Printf("wrote plots and report to %s", *outDir)
	return nil
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Printf("bodyfilter %s\n", version.String())
		return
	}
	if err := run(); err != nil {
		log.Fatalf("bodyfilter: %v", err)
	}
}
