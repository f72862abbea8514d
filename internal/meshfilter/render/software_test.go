package render

import (
	"math"
	"testing"
)

func testParams(w, h int) Params {
	return Params{
		Width: w, Height: h,
		Fx: float32(w), Fy: float32(w),
		Cx: float32(w) / 2, Cy: float32(h) / 2,
		Near: 0.1, Far: 10,
	}
}

func quadGeometry(half float32) Geometry {
	return Geometry{
		Vertices: []float32{
			-half, -half, 0,
			half, -half, 0,
			half, half, 0,
			-half, half, 0,
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func translateZ(z float64) [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, z,
		0, 0, 0, 1,
	}
}

func newTestBackend(t *testing.T, w, h int) (*SoftwareBackend, Program) {
	t.Helper()
	b := NewSoftwareBackend()
	if err := b.Init(testParams(w, h)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	prog, err := b.CompileProgram("vertex", "fragment")
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	return b, prog
}

func TestInitRejectsBadParams(t *testing.T) {
	cases := []Params{
		{Width: 0, Height: 8, Near: 0.1, Far: 10},
		{Width: 8, Height: 8, Near: 0, Far: 10},
		{Width: 8, Height: 8, Near: 5, Far: 5},
	}
	for i, p := range cases {
		if err := NewSoftwareBackend().Init(p); err == nil {
			t.Fatalf("case %d: invalid params accepted", i)
		}
	}
}

func TestCompileProgramValidatesSources(t *testing.T) {
	b := NewSoftwareBackend()
	if err := b.Init(testParams(4, 4)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := b.CompileProgram("", "fragment"); err == nil {
		t.Fatal("empty vertex source accepted")
	}
	if _, err := b.CompileProgram("vertex", "  \n"); err == nil {
		t.Fatal("blank fragment source accepted")
	}
	p1, err := b.CompileProgram("v", "f")
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	p2, err := b.CompileProgram("v", "f")
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if p1 == p2 || p1 == 0 || p2 == 0 {
		t.Fatalf("program ids not distinct and nonzero: %d, %d", p1, p2)
	}
}

func TestUploadMeshDuplicateLabel(t *testing.T) {
	b, _ := newTestBackend(t, 4, 4)
	if err := b.UploadMesh(2, quadGeometry(1)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	if err := b.UploadMesh(2, quadGeometry(1)); err == nil {
		t.Fatal("duplicate label accepted")
	}
	if !b.ReleaseMesh(2) {
		t.Fatal("ReleaseMesh reported missing for uploaded mesh")
	}
	if b.ReleaseMesh(2) {
		t.Fatal("ReleaseMesh succeeded twice")
	}
}

func TestRenderModelQuadCoverage(t *testing.T) {
	b, prog := newTestBackend(t, 16, 16)
	if err := b.UploadMesh(2, quadGeometry(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	b.RenderModel(prog, []Draw{{Label: 2, Pose: translateZ(2)}})

	depth := make([]float32, 256)
	labels := make([]uint32, 256)
	if err := b.ModelDepth(depth); err != nil {
		t.Fatalf("ModelDepth: %v", err)
	}
	if err := b.ModelLabels(labels); err != nil {
		t.Fatalf("ModelLabels: %v", err)
	}

	// A quad with half-extent 4 at z=2 covers the whole 16x16 image.
	wantNorm := float32((2 - 0.1) / (10 - 0.1))
	for i := range depth {
		if math.Abs(float64(depth[i]-wantNorm)) > 1e-4 {
			t.Fatalf("pixel %d depth = %v, want %v", i, depth[i], wantNorm)
		}
		if labels[i] != 2 {
			t.Fatalf("pixel %d label = %d, want 2", i, labels[i])
		}
	}
}

func TestRenderModelBackFaceCull(t *testing.T) {
	b, prog := newTestBackend(t, 16, 16)
	if err := b.UploadMesh(2, quadGeometry(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	// Rotate the quad 180 degrees about X so its back faces the sensor.
	flipped := [16]float64{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, -1, 2,
		0, 0, 0, 1,
	}
	b.RenderModel(prog, []Draw{{Label: 2, Pose: flipped}})

	depth := make([]float32, 256)
	if err := b.ModelDepth(depth); err != nil {
		t.Fatalf("ModelDepth: %v", err)
	}
	for i := range depth {
		if depth[i] != 1.0 {
			t.Fatalf("pixel %d rendered from a back face: %v", i, depth[i])
		}
	}
}

func TestRenderModelNearestWins(t *testing.T) {
	b, prog := newTestBackend(t, 16, 16)
	if err := b.UploadMesh(2, quadGeometry(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	if err := b.UploadMesh(3, quadGeometry(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	b.RenderModel(prog, []Draw{
		{Label: 3, Pose: translateZ(3)},
		{Label: 2, Pose: translateZ(2)},
	})

	labels := make([]uint32, 256)
	if err := b.ModelLabels(labels); err != nil {
		t.Fatalf("ModelLabels: %v", err)
	}
	for i := range labels {
		if labels[i] != 2 {
			t.Fatalf("pixel %d label = %d, want nearest mesh 2", i, labels[i])
		}
	}
}

func TestRenderModelBehindNearPlaneDropped(t *testing.T) {
	b, prog := newTestBackend(t, 16, 16)
	if err := b.UploadMesh(2, quadGeometry(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	b.RenderModel(prog, []Draw{{Label: 2, Pose: translateZ(0.05)}})

	depth := make([]float32, 256)
	if err := b.ModelDepth(depth); err != nil {
		t.Fatalf("ModelDepth: %v", err)
	}
	for i := range depth {
		if depth[i] != 1.0 {
			t.Fatalf("pixel %d rendered in front of near plane: %v", i, depth[i])
		}
	}
}

func TestRenderFilterClassification(t *testing.T) {
	b, prog := newTestBackend(t, 16, 16)
	if err := b.UploadMesh(2, quadGeometry(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	b.RenderModel(prog, []Draw{{Label: 2, Pose: translateZ(2)}})

	scale := float32(1.0 / (10 - 0.1))
	norm := func(m float32) float32 { return (m - 0.1) * scale }
	n := 256
	sensor := make([]float32, n)
	// Row 0: on the surface. Row 1: in front. Row 2: deep behind.
	for x := 0; x < 16; x++ {
		sensor[0*16+x] = norm(2.0)
		sensor[1*16+x] = norm(1.0)
		sensor[2*16+x] = norm(3.5)
	}
	for i := 3 * 16; i < n; i++ {
		sensor[i] = norm(1.0)
	}

	b.RenderFilter(prog, sensor, [3]float32{0, 0, 0.01}, 0.5)

	labels := make([]uint32, n)
	depth := make([]float32, n)
	if err := b.FilteredLabels(labels); err != nil {
		t.Fatalf("FilteredLabels: %v", err)
	}
	if err := b.FilteredDepth(depth); err != nil {
		t.Fatalf("FilteredDepth: %v", err)
	}

	if labels[5] != 2 || depth[5] != 0 {
		t.Fatalf("surface pixel: label %d depth %v, want self 2 with blanked depth", labels[5], depth[5])
	}
	if labels[16+5] != 0 {
		t.Fatalf("front pixel: label %d, want background", labels[16+5])
	}
	if math.Abs(float64(depth[16+5]-norm(1.0))) > 1e-5 {
		t.Fatalf("front pixel depth = %v, want pass-through %v", depth[16+5], norm(1.0))
	}
	if labels[2*16+5] != 1 || depth[2*16+5] != 0 {
		t.Fatalf("deep pixel: label %d depth %v, want shadow with blanked depth", labels[2*16+5], depth[2*16+5])
	}
}

func TestRenderFilterNoModelPassThrough(t *testing.T) {
	b, prog := newTestBackend(t, 4, 4)
	sensor := make([]float32, 16)
	for i := range sensor {
		sensor[i] = 0.4
	}
	b.RenderModel(prog, nil)
	b.RenderFilter(prog, sensor, [3]float32{0, 0, 0.01}, 0.5)

	labels := make([]uint32, 16)
	depth := make([]float32, 16)
	if err := b.FilteredLabels(labels); err != nil {
		t.Fatalf("FilteredLabels: %v", err)
	}
	if err := b.FilteredDepth(depth); err != nil {
		t.Fatalf("FilteredDepth: %v", err)
	}
	for i := range labels {
		if labels[i] != 0 || depth[i] != 0.4 {
			t.Fatalf("pixel %d: label %d depth %v, want background pass-through", i, labels[i], depth[i])
		}
	}
}

func TestReadbackLengthChecked(t *testing.T) {
	b, _ := newTestBackend(t, 4, 4)
	if err := b.ModelDepth(make([]float32, 3)); err == nil {
		t.Fatal("short depth buffer accepted")
	}
	if err := b.FilteredLabels(make([]uint32, 99)); err == nil {
		t.Fatal("long label buffer accepted")
	}
}

func TestResizeReallocatesTargets(t *testing.T) {
	b, prog := newTestBackend(t, 8, 8)
	b.Resize(4, 4, 4, 4, 2, 2)
	b.RenderModel(prog, nil)
	depth := make([]float32, 16)
	if err := b.ModelDepth(depth); err != nil {
		t.Fatalf("ModelDepth after resize: %v", err)
	}
	for i := range depth {
		if depth[i] != 1.0 {
			t.Fatalf("pixel %d not cleared after resize: %v", i, depth[i])
		}
	}
}
