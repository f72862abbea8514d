package filterdb

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// FilterRun is one recorded filter session.
type FilterRun struct {
	RunID             string
	SensorID          string
	CreatedUnixNanos  int64
	FinishedUnixNanos int64
	ParamsJSON        string
	Status            string
	FrameCount        int
	SummaryJSON       string
}

// FrameStats holds one frame's classification tallies.
type FrameStats struct {
	FrameIndex       int
	Encoding         string
	SelfPixels       int
	ShadowPixels     int
	BackgroundPixels int
	DurationNanos    int64
	CreatedUnixNanos int64
}

// selfRatio is the fraction of pixels classified as robot body.
func (f FrameStats) selfRatio() float64 {
	total := f.SelfPixels + f.ShadowPixels + f.BackgroundPixels
	if total == 0 {
		return 0
	}
	return float64(f.SelfPixels) / float64(total)
}

// RunSummary aggregates a run's per-frame self-pixel ratios.
type RunSummary struct {
	Frames           int     `json:"frames"`
	MeanSelfRatio    float64 `json:"mean_self_ratio"`
	StdDevSelfRatio  float64 `json:"stddev_self_ratio"`
	MedianSelfRatio  float64 `json:"median_self_ratio"`
	P95SelfRatio     float64 `json:"p95_self_ratio"`
	TotalDurationSec float64 `json:"total_duration_sec"`
}

// FilterRunManager coordinates the lifecycle of one filter run at a time
// and accumulates its statistics. Safe for concurrent use.
type FilterRunManager struct {
	mu       sync.Mutex
	db       *FilterDB
	sensorID string

	runID      string
	frameIndex int
	selfRatios []float64
	durationNs int64
}

// NewFilterRunManager creates a manager recording runs for one sensor.
func NewFilterRunManager(db *FilterDB, sensorID string) *FilterRunManager {
	return &FilterRunManager{db: db, sensorID: sensorID}
}

// StartRun begins a new run and returns its ID. Fails if a run is already
// in progress.
func (m *FilterRunManager) StartRun(paramsJSON string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runID != "" {
		return "", fmt.Errorf("run %s already in progress", m.runID)
	}
	if paramsJSON == "" {
		paramsJSON = "{}"
	}

	runID := uuid.New().String()
	run := &FilterRun{
		RunID:            runID,
		SensorID:         m.sensorID,
		CreatedUnixNanos: time.Now().UnixNano(),
		ParamsJSON:       paramsJSON,
		Status:           "running",
	}
	if err := m.db.InsertRun(run); err != nil {
		return "", err
	}

	m.runID = runID
	m.frameIndex = 0
	m.selfRatios = nil
	m.durationNs = 0
	log.Printf("[FilterRunManager] started run %s for sensor %s", runID, m.sensorID)
	return runID, nil
}

// RecordFrame persists one frame's statistics under the current run. The
// frame index is assigned by the manager.
func (m *FilterRunManager) RecordFrame(f FrameStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runID == "" {
		return fmt.Errorf("no run in progress")
	}
	f.FrameIndex = m.frameIndex
	if f.CreatedUnixNanos == 0 {
		f.CreatedUnixNanos = time.Now().UnixNano()
	}
	if err := m.db.InsertFrame(m.runID, &f); err != nil {
		return err
	}
	m.frameIndex++
	m.selfRatios = append(m.selfRatios, f.selfRatio())
	m.durationNs += f.DurationNanos
	return nil
}

// FinishRun closes the current run, stores the aggregated summary, and
// returns it.
func (m *FilterRunManager) FinishRun() (*RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runID == "" {
		return nil, fmt.Errorf("no run in progress")
	}

	summary := summarize(m.selfRatios, m.durationNs)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	if err := m.db.FinishRun(m.runID, "completed", string(summaryJSON), m.frameIndex, time.Now().UnixNano()); err != nil {
		return nil, err
	}
	log.Printf("[FilterRunManager] finished run %s: %d frames, mean self ratio %.4f",
		m.runID, summary.Frames, summary.MeanSelfRatio)
	m.runID = ""
	return summary, nil
}

func summarize(selfRatios []float64, durationNs int64) *RunSummary {
	s := &RunSummary{
		Frames:           len(selfRatios),
		TotalDurationSec: float64(durationNs) / 1e9,
	}
	if len(selfRatios) == 0 {
		return s
	}
	sorted := make([]float64, len(selfRatios))
	copy(sorted, selfRatios)
	sort.Float64s(sorted)

	s.MeanSelfRatio = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.StdDevSelfRatio = stat.StdDev(sorted, nil)
	}
	s.MedianSelfRatio = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P95SelfRatio = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return s
}
