package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/bodyfilter/internal/testutil"
)

func requireNonEmptyFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	testutil.AssertNoError(t, err)
	if info.Size() == 0 {
		t.Fatalf("%s is empty", path)
	}
}

func TestSaveDepthPNG(t *testing.T) {
	depth := make([]float32, 8*8)
	for i := range depth {
		depth[i] = float32(i) / 63.0
	}
	path := filepath.Join(t.TempDir(), "depth.png")
	testutil.AssertNoError(t, SaveDepthPNG(path, 8, 8, depth))
	requireNonEmptyFile(t, path)
}

func TestSaveLabelPNG(t *testing.T) {
	labels := make([]uint32, 8*8)
	for i := 20; i < 40; i++ {
		labels[i] = 2
	}
	labels[0] = 1
	path := filepath.Join(t.TempDir(), "labels.png")
	testutil.AssertNoError(t, SaveLabelPNG(path, 8, 8, labels))
	requireNonEmptyFile(t, path)
}

func TestSaveDepthPNGLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depth.png")
	testutil.AssertError(t, SaveDepthPNG(path, 8, 8, make([]float32, 10)))
	testutil.AssertError(t, SaveDepthPNG(path, 0, 8, nil))
}
