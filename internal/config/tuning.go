// Package config loads and applies filter tuning configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/bodyfilter/internal/meshfilter"
)

// TuningConfig is the root configuration for filter tuning. All fields are
// optional pointers so a partial JSON file only overrides what it names;
// omitted fields keep their engine defaults.
type TuningConfig struct {
	// Runtime tuning scalars
	ShadowThreshold *float64 `json:"shadow_threshold,omitempty"`
	PaddingScale    *float64 `json:"padding_scale,omitempty"`
	PaddingOffset   *float64 `json:"padding_offset,omitempty"`

	// Sensor geometry
	Width               *int      `json:"width,omitempty"`
	Height              *int      `json:"height,omitempty"`
	NearClip            *float64  `json:"near_clip,omitempty"`
	FarClip             *float64  `json:"far_clip,omitempty"`
	PaddingCoefficients []float64 `json:"padding_coefficients,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// carry a .json extension and the file must stay under the size cap.
// Fields omitted from the file remain nil, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the set fields for plausibility.
func (c *TuningConfig) Validate() error {
	if c.Width != nil && *c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", *c.Width)
	}
	if c.Height != nil && *c.Height <= 0 {
		return fmt.Errorf("height must be positive, got %d", *c.Height)
	}
	if c.NearClip != nil && *c.NearClip <= 0 {
		return fmt.Errorf("near_clip must be positive, got %v", *c.NearClip)
	}
	if c.NearClip != nil && c.FarClip != nil && *c.FarClip <= *c.NearClip {
		return fmt.Errorf("far_clip %v must exceed near_clip %v", *c.FarClip, *c.NearClip)
	}
	if c.PaddingScale != nil && *c.PaddingScale < 0 {
		return fmt.Errorf("padding_scale must not be negative, got %v", *c.PaddingScale)
	}
	if n := len(c.PaddingCoefficients); n != 0 && n != 3 {
		return fmt.Errorf("padding_coefficients needs exactly 3 values, got %d", n)
	}
	return nil
}

// SensorParams overlays the config onto base sensor parameters and returns
// the result.
func (c *TuningConfig) SensorParams(base meshfilter.SensorModelParams) meshfilter.SensorModelParams {
	if c.Width != nil {
		base.Width = *c.Width
	}
	if c.Height != nil {
		base.Height = *c.Height
	}
	if c.NearClip != nil {
		base.NearClip = float32(*c.NearClip)
	}
	if c.FarClip != nil {
		base.FarClip = float32(*c.FarClip)
	}
	if len(c.PaddingCoefficients) == 3 {
		for i, v := range c.PaddingCoefficients {
			base.PaddingCoefficients[i] = float32(v)
		}
	}
	return base
}

// Apply pushes the runtime tuning scalars onto a running engine. Sensor
// geometry fields are construction-time only and are ignored here.
func (c *TuningConfig) Apply(f *meshfilter.MeshFilter) {
	if c.ShadowThreshold != nil {
		f.SetShadowThreshold(float32(*c.ShadowThreshold))
	}
	if c.PaddingScale != nil {
		f.SetPaddingScale(float32(*c.PaddingScale))
	}
	if c.PaddingOffset != nil {
		f.SetPaddingOffset(float32(*c.PaddingOffset))
	}
}
