package render

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
)

// SoftwareBackend is a deterministic CPU implementation of Backend. It
// rasterizes triangles with edge functions and inverse-depth interpolation,
// which makes it the reference for the engine's classification semantics
// and the backend used by the test suite. Shader sources are treated as
// opaque compiled units: CompileProgram validates and registers them but
// the passes themselves are fixed-function.
type SoftwareBackend struct {
	p     Params
	scale float32 // 1/(far-near)

	nextProgram Program
	programs    map[Program]struct{}
	meshes      map[uint32]Geometry

	modelDepth     []float32
	modelLabels    []uint32
	filteredDepth  []float32
	filteredLabels []uint32

	// sensor is the backing store of the sensor depth texture, allocated
	// once at Init and refilled by every filter pass.
	sensor []float32

	// quadReady stands in for the reusable full-screen primitive a GPU
	// backend would cache; the software filter pass sweeps the target
	// directly.
	quadReady bool
}

var _ Backend = (*SoftwareBackend)(nil)

// NewSoftwareBackend returns an uninitialized software backend. Init must
// be called (on the owning goroutine) before any other operation.
func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{
		nextProgram: 1,
		programs:    make(map[Program]struct{}),
		meshes:      make(map[uint32]Geometry),
	}
}

func (b *SoftwareBackend) Init(p Params) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("software backend: invalid target size %dx%d", p.Width, p.Height)
	}
	if p.Near <= 0 || p.Far <= p.Near {
		return fmt.Errorf("software backend: invalid clip range [%v, %v]", p.Near, p.Far)
	}
	b.p = p
	b.scale = 1.0 / (p.Far - p.Near)
	b.allocTargets()
	b.quadReady = true
	return nil
}

func (b *SoftwareBackend) allocTargets() {
	n := b.p.Width * b.p.Height
	b.modelDepth = make([]float32, n)
	b.modelLabels = make([]uint32, n)
	b.filteredDepth = make([]float32, n)
	b.filteredLabels = make([]uint32, n)
	b.sensor = make([]float32, n)
}

func (b *SoftwareBackend) CompileProgram(vertex, fragment string) (Program, error) {
	if strings.TrimSpace(vertex) == "" {
		return 0, fmt.Errorf("compile program: empty vertex shader source")
	}
	if strings.TrimSpace(fragment) == "" {
		return 0, fmt.Errorf("compile program: empty fragment shader source")
	}
	id := b.nextProgram
	b.nextProgram++
	b.programs[id] = struct{}{}
	return id, nil
}

func (b *SoftwareBackend) Resize(width, height int, fx, fy, cx, cy float32) {
	b.p.Width, b.p.Height = width, height
	b.p.Fx, b.p.Fy, b.p.Cx, b.p.Cy = fx, fy, cx, cy
	b.allocTargets()
}

func (b *SoftwareBackend) UploadMesh(label uint32, g Geometry) error {
	if _, ok := b.meshes[label]; ok {
		return fmt.Errorf("upload mesh: label %d already uploaded", label)
	}
	vertices := make([]float32, len(g.Vertices))
	copy(vertices, g.Vertices)
	indices := make([]uint32, len(g.Indices))
	copy(indices, g.Indices)
	b.meshes[label] = Geometry{Vertices: vertices, Indices: indices}
	return nil
}

func (b *SoftwareBackend) ReleaseMesh(label uint32) bool {
	if _, ok := b.meshes[label]; !ok {
		return false
	}
	delete(b.meshes, label)
	return true
}

// RenderModel clears the model targets to the far plane and rasterizes
// every draw with back-face culling and a nearest-wins depth test. The
// label target carries the draw's mesh label on covered pixels.
func (b *SoftwareBackend) RenderModel(prog Program, draws []Draw) {
	if _, ok := b.programs[prog]; !ok {
		return
	}
	for i := range b.modelDepth {
		b.modelDepth[i] = 1.0
		b.modelLabels[i] = 0
	}
	for _, d := range draws {
		g, ok := b.meshes[d.Label]
		if !ok {
			continue
		}
		b.rasterize(g, d.Pose, d.Label)
	}
}

func (b *SoftwareBackend) rasterize(g Geometry, pose [16]float64, label uint32) {
	for t := 0; t+2 < len(g.Indices); t += 3 {
		var vx, vy, vz [3]float32
		behindNear := false
		for k := 0; k < 3; k++ {
			i := g.Indices[t+k] * 3
			x := float64(g.Vertices[i])
			y := float64(g.Vertices[i+1])
			z := float64(g.Vertices[i+2])
			wx := pose[0]*x + pose[1]*y + pose[2]*z + pose[3]
			wy := pose[4]*x + pose[5]*y + pose[6]*z + pose[7]
			wz := pose[8]*x + pose[9]*y + pose[10]*z + pose[11]
			if wz < float64(b.p.Near) {
				behindNear = true
				break
			}
			vx[k], vy[k], vz[k] = float32(wx), float32(wy), float32(wz)
		}
		// TODO: clip triangles spanning the near plane instead of dropping them.
		if behindNear {
			continue
		}

		var px, py [3]float32
		for k := 0; k < 3; k++ {
			px[k] = b.p.Fx*vx[k]/vz[k] + b.p.Cx
			py[k] = b.p.Fy*vy[k]/vz[k] + b.p.Cy
		}

		// Back-face cull: front faces have positive signed area in image
		// space (X right, Y down).
		area := (px[1]-px[0])*(py[2]-py[0]) - (py[1]-py[0])*(px[2]-px[0])
		if area <= 0 {
			continue
		}

		minX := int(math32.Floor(math32.Min(px[0], math32.Min(px[1], px[2]))))
		maxX := int(math32.Ceil(math32.Max(px[0], math32.Max(px[1], px[2]))))
		minY := int(math32.Floor(math32.Min(py[0], math32.Min(py[1], py[2]))))
		maxY := int(math32.Ceil(math32.Max(py[0], math32.Max(py[1], py[2]))))
		if minX < 0 {
			minX = 0
		}
		if minY < 0 {
			minY = 0
		}
		if maxX > b.p.Width-1 {
			maxX = b.p.Width - 1
		}
		if maxY > b.p.Height-1 {
			maxY = b.p.Height - 1
		}

		iz0, iz1, iz2 := 1/vz[0], 1/vz[1], 1/vz[2]
		for y := minY; y <= maxY; y++ {
			qy := float32(y) + 0.5
			for x := minX; x <= maxX; x++ {
				qx := float32(x) + 0.5
				w0 := (px[2]-px[1])*(qy-py[1]) - (py[2]-py[1])*(qx-px[1])
				w1 := (px[0]-px[2])*(qy-py[2]) - (py[0]-py[2])*(qx-px[2])
				w2 := (px[1]-px[0])*(qy-py[0]) - (py[1]-py[0])*(qx-px[0])
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				// Inverse depth is affine in image space; interpolate it
				// and invert for a perspective-correct depth sample.
				iz := (w0*iz0 + w1*iz1 + w2*iz2) / area
				if iz <= 0 {
					continue
				}
				z := 1 / iz
				if z < b.p.Near || z > b.p.Far {
					continue
				}
				norm := (z - b.p.Near) * b.scale
				idx := y*b.p.Width + x
				if norm < b.modelDepth[idx] {
					b.modelDepth[idx] = norm
					b.modelLabels[idx] = label
				}
			}
		}
	}
}

// RenderFilter uploads the normalized sensor image into the sensor texture
// and classifies every pixel against the model targets:
//
//   - no model coverage: the sensor depth passes through as background;
//   - within the padding tolerance band around the model depth: self.
//     The pixel takes the model's mesh label and its depth is blanked;
//   - deeper than the model by more than the shadow threshold: shadow,
//     label 1, depth blanked;
//   - anything else passes through as background (label 0).
//
// padding is the metric tolerance polynomial evaluated at the model's
// metric depth; shadowThreshold is in metres. Both are converted into the
// normalized domain with the codec scale before comparison.
func (b *SoftwareBackend) RenderFilter(prog Program, sensor []float32, padding [3]float32, shadowThreshold float32) {
	if _, ok := b.programs[prog]; !ok {
		return
	}
	copy(b.sensor, sensor)
	shadowNorm := shadowThreshold * b.scale
	for i, s := range b.sensor {
		m := b.modelDepth[i]
		if m >= 1.0 {
			b.filteredDepth[i] = s
			b.filteredLabels[i] = 0
			continue
		}
		z := m/b.scale + b.p.Near
		tol := (padding[0]*z*z + padding[1]*z + padding[2]) * b.scale
		diff := s - m
		switch {
		case diff >= -tol && diff <= tol:
			b.filteredDepth[i] = 0
			b.filteredLabels[i] = b.modelLabels[i]
		case diff > shadowNorm:
			b.filteredDepth[i] = 0
			b.filteredLabels[i] = 1
		default:
			b.filteredDepth[i] = s
			b.filteredLabels[i] = 0
		}
	}
}

func (b *SoftwareBackend) ModelDepth(dst []float32) error {
	return copyFloats("model depth", dst, b.modelDepth)
}

func (b *SoftwareBackend) ModelLabels(dst []uint32) error {
	return copyLabels("model labels", dst, b.modelLabels)
}

func (b *SoftwareBackend) FilteredDepth(dst []float32) error {
	return copyFloats("filtered depth", dst, b.filteredDepth)
}

func (b *SoftwareBackend) FilteredLabels(dst []uint32) error {
	return copyLabels("filtered labels", dst, b.filteredLabels)
}

func copyFloats(what string, dst, src []float32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%s readback: have %d elements, want %d", what, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func copyLabels(what string, dst, src []uint32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%s readback: have %d elements, want %d", what, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func (b *SoftwareBackend) Close() {
	b.meshes = nil
	b.programs = nil
	b.modelDepth, b.modelLabels = nil, nil
	b.filteredDepth, b.filteredLabels = nil, nil
	b.sensor = nil
	b.quadReady = false
}
