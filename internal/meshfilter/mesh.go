package meshfilter

import "fmt"

// MeshHandle identifies a registered occluder mesh. Values 0 and 1 are
// reserved as label sentinels and are never issued; valid handles start at
// FirstHandle. A handle is unique among currently registered meshes only
// and may be reissued after RemoveMesh.
type MeshHandle uint32

const (
	// LabelBackground marks a pixel that belongs to the environment.
	LabelBackground MeshHandle = 0
	// LabelShadow marks a pixel occluded by a mesh (no valid return).
	LabelShadow MeshHandle = 1
	// FirstHandle is the smallest handle ever issued for a mesh.
	FirstHandle MeshHandle = 2
)

// MeshGeometry is triangle soup in mesh-local coordinates: packed x,y,z
// vertex triples and triangle index triples. Front faces wind
// counter-clockwise in image space (X right, Y down) when facing the
// sensor.
type MeshGeometry struct {
	Vertices []float32
	Indices  []uint32
}

// Validate checks the buffers for structural consistency.
func (g MeshGeometry) Validate() error {
	if len(g.Vertices) == 0 || len(g.Vertices)%3 != 0 {
		return fmt.Errorf("mesh geometry: vertex buffer length %d is not a positive multiple of 3", len(g.Vertices))
	}
	if len(g.Indices) == 0 || len(g.Indices)%3 != 0 {
		return fmt.Errorf("mesh geometry: index buffer length %d is not a positive multiple of 3", len(g.Indices))
	}
	vertexCount := uint32(len(g.Vertices) / 3)
	for i, idx := range g.Indices {
		if idx >= vertexCount {
			return fmt.Errorf("mesh geometry: index %d at position %d exceeds vertex count %d", idx, i, vertexCount)
		}
	}
	return nil
}

// TriangleCount returns the number of triangles in the mesh.
func (g MeshGeometry) TriangleCount() int { return len(g.Indices) / 3 }

// NewQuadGeometry builds a single rectangle of the given extent, centred on
// the mesh origin in the local XY plane, facing the -Z direction. Posed in
// front of the sensor it covers a rectangular patch of the image; it is the
// simplest useful occluder for tests and synthetic scenes.
func NewQuadGeometry(width, height float32) MeshGeometry {
	hw, hh := width/2, height/2
	return MeshGeometry{
		Vertices: []float32{
			-hw, -hh, 0,
			hw, -hh, 0,
			hw, hh, 0,
			-hw, hh, 0,
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// NewBoxGeometry builds an axis-aligned box of the given extents centred on
// the mesh origin, with outward-facing front faces on all six sides.
func NewBoxGeometry(sx, sy, sz float32) MeshGeometry {
	hx, hy, hz := sx/2, sy/2, sz/2
	var g MeshGeometry
	// Each face is built from its centre and two in-plane half-axes chosen
	// so the winding faces outward under the image-space convention
	// (u cross v pointing opposite the outward normal).
	face := func(cx, cy, cz, ux, uy, uz, vx, vy, vz float32) {
		base := uint32(len(g.Vertices) / 3)
		g.Vertices = append(g.Vertices,
			cx-ux-vx, cy-uy-vy, cz-uz-vz,
			cx+ux-vx, cy+uy-vy, cz+uz-vz,
			cx+ux+vx, cy+uy+vy, cz+uz+vz,
			cx-ux+vx, cy-uy+vy, cz-uz+vz,
		)
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	face(0, 0, -hz, hx, 0, 0, 0, hy, 0)  // -Z: u=+X v=+Y, u x v = +Z = -normal
	face(0, 0, hz, 0, hy, 0, hx, 0, 0)   // +Z: u=+Y v=+X, u x v = -Z
	face(-hx, 0, 0, 0, hy, 0, 0, 0, hz)  // -X: u=+Y v=+Z, u x v = +X
	face(hx, 0, 0, 0, 0, hz, 0, hy, 0)   // +X: u=+Z v=+Y, u x v = -X
	face(0, -hy, 0, 0, 0, hz, hx, 0, 0)  // -Y: u=+Z v=+X, u x v = +Y
	face(0, hy, 0, hx, 0, 0, 0, 0, hz)   // +Y: u=+X v=+Z, u x v = -Y
	return g
}

// meshEntry is the registry record for one uploaded mesh. Entries are
// created and destroyed only on the worker goroutine.
type meshEntry struct {
	handle   MeshHandle
	geometry MeshGeometry
}

// CountLabels tallies a label buffer into background, shadow, and self
// (any registered handle) pixel counts.
func CountLabels(labels []uint32) (background, shadow, self int) {
	for _, l := range labels {
		switch MeshHandle(l) {
		case LabelBackground:
			background++
		case LabelShadow:
			shadow++
		default:
			self++
		}
	}
	return
}
