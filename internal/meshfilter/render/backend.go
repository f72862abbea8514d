// Package render defines the abstract rendering surface the mesh filter
// engine drives, plus a deterministic CPU reference backend. A backend is
// owned by exactly one goroutine (the engine's worker) for its whole life;
// implementations need no internal locking and must not be shared.
package render

// Program is an opaque compiled shader program handle.
type Program uint32

// Params configures a backend's offscreen targets and camera model.
// Depths are normalized so [Near, Far] maps onto [0, 1].
type Params struct {
	Width  int
	Height int

	// Pinhole intrinsics in pixels: focal lengths and principal point.
	Fx float32
	Fy float32
	Cx float32
	Cy float32

	Near float32
	Far  float32
}

// Geometry is mesh geometry handed to UploadMesh: packed x,y,z vertex
// triples and triangle index triples, fronts wound counter-clockwise in
// image space.
type Geometry struct {
	Vertices []float32
	Indices  []uint32
}

// Draw names one uploaded mesh and its sensor-frame pose (row-major 4x4)
// for a model pass.
type Draw struct {
	Label uint32
	Pose  [16]float64
}

// Backend is the set of operations the engine requires from a rendering
// implementation. Every call happens on the engine's worker goroutine.
//
// The model pass renders the given meshes from the sensor viewpoint with
// back-face culling and a nearest-wins depth test into a normalized depth
// target and a label target carrying each pixel's mesh label. The filter
// pass compares an uploaded normalized sensor image against the model
// targets and produces filtered depth and label targets; see
// SoftwareBackend.RenderFilter for the classification rules.
type Backend interface {
	// Init allocates the offscreen targets, the sensor depth texture, and
	// the reusable full-screen quad primitive.
	Init(p Params) error

	// CompileProgram builds one opaque shader program from vertex and
	// fragment sources. Compilation failure is fatal to engine startup.
	CompileProgram(vertex, fragment string) (Program, error)

	// Resize reallocates the render targets and updates the camera model.
	Resize(width, height int, fx, fy, cx, cy float32)

	UploadMesh(label uint32, g Geometry) error
	ReleaseMesh(label uint32) bool

	// RenderModel runs the model pass for the given draws.
	RenderModel(prog Program, draws []Draw)

	// RenderFilter runs the filter pass. sensor is the normalized sensor
	// depth image; padding holds the metric tolerance polynomial
	// (c2*z^2 + c1*z + c0) and shadowThreshold is in metres.
	RenderFilter(prog Program, sensor []float32, padding [3]float32, shadowThreshold float32)

	// Readbacks copy a full target into the destination buffer, which must
	// hold exactly width*height elements. Depth readbacks are normalized.
	ModelDepth(dst []float32) error
	ModelLabels(dst []uint32) error
	FilteredDepth(dst []float32) error
	FilteredLabels(dst []uint32) error

	// Close releases all backend resources.
	Close()
}
