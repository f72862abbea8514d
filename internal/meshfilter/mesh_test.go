package meshfilter

import "testing"

func TestGeometryValidate(t *testing.T) {
	g := NewQuadGeometry(1, 1)
	if err := g.Validate(); err != nil {
		t.Fatalf("quad rejected: %v", err)
	}
	if err := (MeshGeometry{}).Validate(); err == nil {
		t.Fatal("empty geometry accepted")
	}
	bad := MeshGeometry{Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 1, 2}}
	if err := bad.Validate(); err == nil {
		t.Fatal("out-of-range index accepted")
	}
	odd := MeshGeometry{Vertices: []float32{0, 0}, Indices: []uint32{0, 0, 0}}
	if err := odd.Validate(); err == nil {
		t.Fatal("ragged vertex buffer accepted")
	}
}

func TestBoxGeometry(t *testing.T) {
	g := NewBoxGeometry(2, 2, 2)
	if err := g.Validate(); err != nil {
		t.Fatalf("box rejected: %v", err)
	}
	if got := g.TriangleCount(); got != 12 {
		t.Fatalf("triangle count = %d, want 12", got)
	}
	// All vertices on the box surface.
	for i := 0; i+2 < len(g.Vertices); i += 3 {
		for k := 0; k < 3; k++ {
			v := g.Vertices[i+k]
			if v != 1 && v != -1 {
				t.Fatalf("vertex component %v off the unit box surface", v)
			}
		}
	}
}

func TestCountLabels(t *testing.T) {
	labels := []uint32{0, 0, 1, 2, 7, 1, 0}
	bg, shadow, self := CountLabels(labels)
	if bg != 3 || shadow != 2 || self != 2 {
		t.Fatalf("counts = %d/%d/%d, want 3/2/2", bg, shadow, self)
	}
}
