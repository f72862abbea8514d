package meshfilter

import "fmt"

// SensorModelParams describes the depth sensor the filter renders against:
// image geometry, clipping distances, and the padding polynomial. The engine
// clones the value at construction time, so mutating a params struct after
// passing it to New has no effect on a running filter.
type SensorModelParams struct {
	Width  int
	Height int

	// NearClip and FarClip bound the depth range in metres; depths are
	// normalized so that [NearClip, FarClip] maps onto [0, 1].
	NearClip float32
	FarClip  float32

	// PaddingCoefficients (c2, c1, c0) define the base tolerance band as a
	// polynomial of metric depth z: c2*z^2 + c1*z + c0 metres. The runtime
	// padding scale multiplies the whole vector and the padding offset is
	// added to the constant term.
	PaddingCoefficients [3]float32
}

// Validate checks the parameters for internal consistency.
func (p SensorModelParams) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("sensor model: invalid image size %dx%d", p.Width, p.Height)
	}
	if p.NearClip <= 0 {
		return fmt.Errorf("sensor model: near clip %v must be positive", p.NearClip)
	}
	if p.FarClip <= p.NearClip {
		return fmt.Errorf("sensor model: far clip %v must exceed near clip %v", p.FarClip, p.NearClip)
	}
	return nil
}

// Codec returns the depth codec for this sensor's clipping distances.
func (p SensorModelParams) Codec() DepthCodec {
	return NewDepthCodec(p.NearClip, p.FarClip)
}

// paddingVector applies the runtime tuning to the base coefficients:
// coefficients*scale + (0, 0, offset).
func (p SensorModelParams) paddingVector(scale, offset float32) [3]float32 {
	return [3]float32{
		p.PaddingCoefficients[0] * scale,
		p.PaddingCoefficients[1] * scale,
		p.PaddingCoefficients[2]*scale + offset,
	}
}

// Pose is a row-major 4x4 rigid transform mapping mesh-local coordinates
// into the sensor frame. The sensor frame is the usual optical convention:
// X right, Y down, Z forward along the view axis.
type Pose [16]float64

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// TranslationPose returns a pure translation by (x, y, z).
func TranslationPose(x, y, z float64) Pose {
	p := IdentityPose()
	p[3], p[7], p[11] = x, y, z
	return p
}

// Apply transforms the point (x, y, z) by the pose.
func (p Pose) Apply(x, y, z float64) (wx, wy, wz float64) {
	wx = p[0]*x + p[1]*y + p[2]*z + p[3]
	wy = p[4]*x + p[5]*y + p[6]*z + p[7]
	wz = p[8]*x + p[9]*y + p[10]*z + p[11]
	return
}

// TransformCallback supplies the current sensor-frame pose of a registered
// mesh. Returning false excludes the mesh from the current filter pass
// without removing its registration. The callback is invoked once per
// registered mesh per pass, always on the worker goroutine, so it must be
// fast and reentrant-safe but needs no synchronization against the render
// pass itself.
type TransformCallback func(handle MeshHandle) (Pose, bool)
