package meshfilter

import "fmt"

// DepthEncoding identifies the per-pixel encoding of a raw sensor frame.
type DepthEncoding int

const (
	// EncodingFloat32Meters is a 32-bit float per pixel, in metres.
	EncodingFloat32Meters DepthEncoding = iota + 1
	// EncodingFixed16 is a 16-bit unsigned count per pixel, in millimetres.
	EncodingFixed16
)

func (e DepthEncoding) String() string {
	switch e {
	case EncodingFloat32Meters:
		return "float32-meters"
	case EncodingFixed16:
		return "fixed16"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Valid reports whether e is a supported sensor encoding.
func (e DepthEncoding) Valid() bool {
	return e == EncodingFloat32Meters || e == EncodingFixed16
}

// SensorFrame is one raw depth image handed to Filter. Exactly one of the
// two buffers is used, selected by Encoding; the other may be nil.
type SensorFrame struct {
	Encoding DepthEncoding
	Float32  []float32 // metric metres, EncodingFloat32Meters
	Fixed16  []uint16  // millimetre counts, EncodingFixed16
}

// validate checks the encoding and buffer length before the frame is
// allowed anywhere near the job queue.
func (f SensorFrame) validate(pixels int) error {
	switch f.Encoding {
	case EncodingFloat32Meters:
		if len(f.Float32) != pixels {
			return fmt.Errorf("sensor frame: have %d float32 pixels, want %d", len(f.Float32), pixels)
		}
	case EncodingFixed16:
		if len(f.Fixed16) != pixels {
			return fmt.Errorf("sensor frame: have %d fixed16 pixels, want %d", len(f.Fixed16), pixels)
		}
	default:
		return fmt.Errorf("unsupported sensor encoding %s: allowed encodings are %s and %s",
			f.Encoding, EncodingFloat32Meters, EncodingFixed16)
	}
	return nil
}

// DepthCodec converts raw sensor samples into the normalized [0,1] depth
// domain used by the render passes, and back to metric metres. With near
// clip N and far clip F the forward transform is norm = metric*scale + bias
// where scale = 1/(F-N) and bias = -scale*N, so [N,F] maps onto [0,1]. The
// fixed-point path folds the millimetre unit step (1000 counts per metre)
// into the scale so both encodings land in the same normalized domain.
type DepthCodec struct {
	near  float32
	far   float32
	scale float32
	bias  float32
}

// NewDepthCodec builds a codec for the given clipping distances.
// Callers must guarantee far > near > 0.
func NewDepthCodec(near, far float32) DepthCodec {
	scale := 1.0 / (far - near)
	return DepthCodec{near: near, far: far, scale: scale, bias: -scale * near}
}

// Scale returns 1/(far-near).
func (c DepthCodec) Scale() float32 { return c.scale }

// NormalizeMetric maps a metric depth in metres to normalized depth.
func (c DepthCodec) NormalizeMetric(metric float32) float32 {
	return metric*c.scale + c.bias
}

// NormalizeFixed16 maps a raw millimetre count to normalized depth.
func (c DepthCodec) NormalizeFixed16(raw uint16) float32 {
	return float32(raw)*(c.scale/1000.0) + c.bias
}

// MetricFromNormalized is the exact algebraic inverse of NormalizeMetric.
// Normalized 0 maps back to the near clip and 1 to the far clip.
func (c DepthCodec) MetricFromNormalized(norm float32) float32 {
	return (norm - c.bias) / c.scale
}

// NormalizeFrame applies the forward transform for the frame's encoding
// into dst, clamping to [0,1] the way a GPU pixel transfer would. dst must
// hold exactly one element per pixel.
func (c DepthCodec) NormalizeFrame(frame SensorFrame, dst []float32) error {
	switch frame.Encoding {
	case EncodingFloat32Meters:
		if len(frame.Float32) != len(dst) {
			return fmt.Errorf("normalize frame: have %d pixels, want %d", len(frame.Float32), len(dst))
		}
		for i, m := range frame.Float32 {
			dst[i] = clamp01(c.NormalizeMetric(m))
		}
	case EncodingFixed16:
		if len(frame.Fixed16) != len(dst) {
			return fmt.Errorf("normalize frame: have %d pixels, want %d", len(frame.Fixed16), len(dst))
		}
		for i, raw := range frame.Fixed16 {
			dst[i] = clamp01(c.NormalizeFixed16(raw))
		}
	default:
		return fmt.Errorf("unsupported sensor encoding %s", frame.Encoding)
	}
	return nil
}

// MetricBuffer converts a normalized depth buffer to metric metres in
// place. The inverse is applied uniformly to every pixel; pixels the filter
// pass blanked to 0 therefore come back as the near-clip distance, and
// consumers distinguish them via the label buffer.
func (c DepthCodec) MetricBuffer(buf []float32) {
	for i, v := range buf {
		buf[i] = c.MetricFromNormalized(v)
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
