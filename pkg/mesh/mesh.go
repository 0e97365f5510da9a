// Package mesh defines the indexed triangle mesh exchanged between the
// primitive generators, the boolean engine and the evaluator, together
// with the cleanup passes that keep a mesh free of numerical artifacts.
package mesh

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultEpsilon is the tolerance shared by vertex welding and every
// geometric predicate of the boolean engine.
const DefaultEpsilon = 1e-6

// Triangle is a triple of vertex indices with its face normal.
// Vertices are ordered counter-clockwise when seen from outside.
type Triangle struct {
	V      [3]int `json:"v"`
	Normal v3.Vec `json:"normal"`
}

// Mesh is an indexed triangle mesh. A Mesh stored in a cache is shared
// read-only; use Clone before modifying it.
type Mesh struct {
	Vertices  []v3.Vec   `json:"vertices"`
	Triangles []Triangle `json:"triangles"`
}

// New returns an empty mesh with room for the given number of vertices
// and triangles.
func New(vertexCap, triangleCap int) *Mesh {
	return &Mesh{
		Vertices:  make([]v3.Vec, 0, vertexCap),
		Triangles: make([]Triangle, 0, triangleCap),
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles)
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Triangles) == 0
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v v3.Vec) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddTriangle appends the triangle (a, b, c) and computes its normal.
func (m *Mesh) AddTriangle(a, b, c int) {
	t := Triangle{V: [3]int{a, b, c}}
	if a >= 0 && b >= 0 && c >= 0 && a < len(m.Vertices) && b < len(m.Vertices) && c < len(m.Vertices) {
		t.Normal = FaceNormal(m.Vertices[a], m.Vertices[b], m.Vertices[c])
	}
	m.Triangles = append(m.Triangles, t)
}

// Corners returns the three vertex positions of triangle i.
func (m *Mesh) Corners(i int) (a, b, c v3.Vec) {
	t := m.Triangles[i].V
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return &Mesh{}
	}
	c := &Mesh{
		Vertices:  make([]v3.Vec, len(m.Vertices)),
		Triangles: make([]Triangle, len(m.Triangles)),
	}
	copy(c.Vertices, m.Vertices)
	copy(c.Triangles, m.Triangles)
	return c
}

// BoundingBox returns the axis-aligned bounds of all vertices. An empty
// mesh has a zero box.
func (m *Mesh) BoundingBox() sdf.Box3 {
	if m == nil || len(m.Vertices) == 0 {
		return sdf.Box3{}
	}
	bb := sdf.Box3{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		bb = bb.Include(v)
	}
	return bb
}

// Append adds all vertices and triangles of other to m, offsetting the
// triangle indices.
func (m *Mesh) Append(other *Mesh) {
	if other == nil {
		return
	}
	offset := len(m.Vertices)
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, t := range other.Triangles {
		m.Triangles = append(m.Triangles, Triangle{
			V:      [3]int{t.V[0] + offset, t.V[1] + offset, t.V[2] + offset},
			Normal: t.Normal,
		})
	}
}

// Merge concatenates meshes into a new mesh without welding.
func Merge(meshes ...*Mesh) *Mesh {
	nv, nt := 0, 0
	for _, o := range meshes {
		if o != nil {
			nv += len(o.Vertices)
			nt += len(o.Triangles)
		}
	}
	out := New(nv, nt)
	for _, o := range meshes {
		out.Append(o)
	}
	return out
}

// Reversed returns a copy of m with every triangle's winding reversed and
// its normal negated.
func (m *Mesh) Reversed() *Mesh {
	out := m.Clone()
	for i := range out.Triangles {
		t := &out.Triangles[i]
		t.V[1], t.V[2] = t.V[2], t.V[1]
		t.Normal = t.Normal.Neg()
	}
	return out
}

// Transform returns a copy of m with every vertex mapped through the
// affine matrix mat. Matrices with a negative determinant (mirrors) flip
// the triangle winding so that normals keep pointing outward.
func (m *Mesh) Transform(mat sdf.M44) *Mesh {
	out := &Mesh{
		Vertices:  make([]v3.Vec, len(m.Vertices)),
		Triangles: make([]Triangle, len(m.Triangles)),
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = mat.MulPosition(v)
	}
	flip := Determinant(mat) < 0
	for i, t := range m.Triangles {
		if flip {
			t.V[1], t.V[2] = t.V[2], t.V[1]
		}
		out.Triangles[i] = t
	}
	out.RecomputeNormals()
	return out
}

// Determinant returns the determinant of the linear part of an affine
// matrix, computed from the images of the unit axes.
func Determinant(mat sdf.M44) float64 {
	o := mat.MulPosition(v3.Vec{})
	ex := mat.MulPosition(v3.Vec{X: 1}).Sub(o)
	ey := mat.MulPosition(v3.Vec{Y: 1}).Sub(o)
	ez := mat.MulPosition(v3.Vec{Z: 1}).Sub(o)
	return ex.Dot(ey.Cross(ez))
}

// FaceNormal returns the unit normal of the triangle (a, b, c), or the
// zero vector for a degenerate triangle.
func FaceNormal(a, b, c v3.Vec) v3.Vec {
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Length()
	if l == 0 || math.IsNaN(l) {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// Area returns the area of the triangle (a, b, c).
func Area(a, b, c v3.Vec) float64 {
	return b.Sub(a).Cross(c.Sub(a)).Length() / 2
}

// RecomputeNormals recomputes every triangle's face normal from its
// current vertices.
func (m *Mesh) RecomputeNormals() {
	for i := range m.Triangles {
		t := &m.Triangles[i]
		if !m.inBounds(t.V) {
			continue
		}
		t.Normal = FaceNormal(m.Vertices[t.V[0]], m.Vertices[t.V[1]], m.Vertices[t.V[2]])
	}
}

func (m *Mesh) inBounds(v [3]int) bool {
	n := len(m.Vertices)
	return v[0] >= 0 && v[0] < n && v[1] >= 0 && v[1] < n && v[2] >= 0 && v[2] < n
}

// ---------------------------------------------------------------------------
// Flat export
// ---------------------------------------------------------------------------

// Flat is a render-oriented copy of a mesh. All arrays are flat: vertices
// has 3 floats per corner, normals has 3 floats per corner, indices has 3
// entries per triangle. Corners are not shared so that each carries its
// face normal.
type Flat struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
}

// Flatten converts m to the flat layout consumed by encoders and viewers.
func (m *Mesh) Flatten() *Flat {
	n := len(m.Triangles) * 3
	f := &Flat{
		Vertices: make([]float32, 0, n*3),
		Normals:  make([]float32, 0, n*3),
		Indices:  make([]uint32, 0, n),
	}
	for i, t := range m.Triangles {
		for j := 0; j < 3; j++ {
			v := m.Vertices[t.V[j]]
			f.Vertices = append(f.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			f.Normals = append(f.Normals, float32(t.Normal.X), float32(t.Normal.Y), float32(t.Normal.Z))
			f.Indices = append(f.Indices, uint32(i*3+j))
		}
	}
	return f
}
