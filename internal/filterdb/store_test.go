package filterdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *FilterDB {
	t.Helper()
	db, err := NewFilterDB(filepath.Join(t.TempDir(), "filter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpIdempotent(t *testing.T) {
	db := newTestDB(t)
	// A second MigrateUp on a current schema is a no-op, not an error.
	require.NoError(t, db.MigrateUp())
}

func TestInsertAndGetRun(t *testing.T) {
	db := newTestDB(t)
	run := &FilterRun{
		RunID:            "run-1",
		SensorID:         "depthcam-0",
		CreatedUnixNanos: 12345,
		ParamsJSON:       `{"shadow_threshold":0.5}`,
		Status:           "running",
	}
	require.NoError(t, db.InsertRun(run))

	got, err := db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "depthcam-0", got.SensorID)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, int64(12345), got.CreatedUnixNanos)
	assert.Zero(t, got.FinishedUnixNanos)
}

func TestInsertAndListFrames(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.InsertRun(&FilterRun{RunID: "run-1", SensorID: "s", Status: "running"}))

	for i := 0; i < 3; i++ {
		err := db.InsertFrame("run-1", &FrameStats{
			FrameIndex:       i,
			Encoding:         "float32-meters",
			SelfPixels:       100 + i,
			ShadowPixels:     10,
			BackgroundPixels: 890 - i,
			DurationNanos:    1000,
			CreatedUnixNanos: int64(i),
		})
		require.NoError(t, err)
	}

	frames, err := db.ListFrames("run-1")
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, 102, frames[2].SelfPixels)
	assert.Equal(t, "float32-meters", frames[0].Encoding)
}

func TestFinishRunUnknownID(t *testing.T) {
	db := newTestDB(t)
	err := db.FinishRun("nope", "completed", "{}", 0, 1)
	assert.Error(t, err)
}
