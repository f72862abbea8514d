package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/bodyfilter/internal/meshfilter"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"shadow_threshold": 0.4,
		"padding_scale": 2.0,
		"width": 320,
		"height": 240,
		"near_clip": 0.2,
		"far_clip": 8.0,
		"padding_coefficients": [0.0, 0.0, 0.02]
	}`)

	got, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	want := &TuningConfig{
		ShadowThreshold:     ptrFloat64(0.4),
		PaddingScale:        ptrFloat64(2.0),
		Width:               ptrInt(320),
		Height:              ptrInt(240),
		NearClip:            ptrFloat64(0.2),
		FarClip:             ptrFloat64(8.0),
		PaddingCoefficients: []float64{0, 0, 0.02},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{"padding_offset": 0.05}`)
	got, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if got.PaddingOffset == nil || *got.PaddingOffset != 0.05 {
		t.Fatalf("padding_offset = %v, want 0.05", got.PaddingOffset)
	}
	if got.ShadowThreshold != nil || got.Width != nil {
		t.Fatal("unset fields must stay nil")
	}
}

func TestLoadTuningConfigRejectsBadInput(t *testing.T) {
	if _, err := LoadTuningConfig(writeConfig(t, "tuning.yaml", "{}")); err == nil {
		t.Fatal("non-json extension accepted")
	}
	if _, err := LoadTuningConfig(writeConfig(t, "tuning.json", "{nope")); err == nil {
		t.Fatal("malformed json accepted")
	}
	if _, err := LoadTuningConfig(writeConfig(t, "tuning.json", `{"width": -3}`)); err == nil {
		t.Fatal("negative width accepted")
	}
	if _, err := LoadTuningConfig(writeConfig(t, "tuning.json", `{"padding_coefficients": [1.0]}`)); err == nil {
		t.Fatal("short padding coefficient vector accepted")
	}
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestSensorParamsOverlay(t *testing.T) {
	base := meshfilter.SensorModelParams{Width: 640, Height: 480, NearClip: 0.3, FarClip: 5}
	cfg := &TuningConfig{
		Width:               ptrInt(320),
		FarClip:             ptrFloat64(10),
		PaddingCoefficients: []float64{0.001, 0, 0.03},
	}
	got := cfg.SensorParams(base)
	if got.Width != 320 || got.Height != 480 {
		t.Fatalf("size = %dx%d, want 320x480", got.Width, got.Height)
	}
	if got.FarClip != 10 || got.NearClip != 0.3 {
		t.Fatalf("clip = [%v, %v], want [0.3, 10]", got.NearClip, got.FarClip)
	}
	if got.PaddingCoefficients != [3]float32{0.001, 0, 0.03} {
		t.Fatalf("padding coefficients = %v", got.PaddingCoefficients)
	}
}

func TestApplyPushesScalars(t *testing.T) {
	f, err := meshfilter.New(meshfilter.Config{
		Sensor:  meshfilter.SensorModelParams{Width: 8, Height: 8, NearClip: 0.1, FarClip: 5},
		Shaders: meshfilter.DefaultShaders(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Close()

	cfg := &TuningConfig{
		ShadowThreshold: ptrFloat64(0.25),
		PaddingScale:    ptrFloat64(3),
		PaddingOffset:   ptrFloat64(0.07),
	}
	cfg.Apply(f)

	if got := f.ShadowThreshold(); got != 0.25 {
		t.Fatalf("shadow threshold = %v, want 0.25", got)
	}
	if got := f.PaddingScale(); got != 3 {
		t.Fatalf("padding scale = %v, want 3", got)
	}
	if got := f.PaddingOffset(); got != float32(0.07) {
		t.Fatalf("padding offset = %v, want 0.07", got)
	}
}
