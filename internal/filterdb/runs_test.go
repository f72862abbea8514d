package filterdb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	m := NewFilterRunManager(db, "depthcam-0")

	runID, err := m.StartRun(`{"padding_scale":1}`)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	// Only one run at a time.
	_, err = m.StartRun("")
	assert.Error(t, err)

	// 1000-pixel frames with varying self counts.
	for _, self := range []int{100, 200, 300, 400} {
		err := m.RecordFrame(FrameStats{
			Encoding:         "fixed16",
			SelfPixels:       self,
			ShadowPixels:     0,
			BackgroundPixels: 1000 - self,
			DurationNanos:    2_000_000,
		})
		require.NoError(t, err)
	}

	summary, err := m.FinishRun()
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Frames)
	assert.InDelta(t, 0.25, summary.MeanSelfRatio, 1e-9)
	assert.InDelta(t, 0.008, summary.TotalDurationSec, 1e-9)
	assert.Greater(t, summary.StdDevSelfRatio, 0.0)

	run, err := db.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 4, run.FrameCount)
	assert.NotZero(t, run.FinishedUnixNanos)

	var stored RunSummary
	require.NoError(t, json.Unmarshal([]byte(run.SummaryJSON), &stored))
	assert.Equal(t, summary.Frames, stored.Frames)

	// Finishing again without a new run fails.
	_, err = m.FinishRun()
	assert.Error(t, err)
}

func TestRecordFrameWithoutRun(t *testing.T) {
	db := newTestDB(t)
	m := NewFilterRunManager(db, "s")
	err := m.RecordFrame(FrameStats{SelfPixels: 1})
	assert.Error(t, err)
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil, 0)
	assert.Zero(t, s.Frames)
	assert.Zero(t, s.MeanSelfRatio)
}
