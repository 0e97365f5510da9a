package mesh_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/chazu/kerf/pkg/mesh"
	"github.com/chazu/kerf/pkg/primitive"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cube returns a welded cube of the given side with its min corner at the origin.
func cube(t *testing.T, side float64) *mesh.Mesh {
	t.Helper()
	m, err := primitive.Cube{Size: v3.Vec{X: side, Y: side, Z: side}}.Generate()
	require.NoError(t, err)
	return m
}

// unshare gives every triangle corner its own vertex, the way a
// triangle soup read from an exchange file looks.
func unshare(m *mesh.Mesh) *mesh.Mesh {
	out := mesh.New(len(m.Triangles)*3, len(m.Triangles))
	for i := range m.Triangles {
		a, b, c := m.Corners(i)
		ia := out.AddVertex(a)
		ib := out.AddVertex(b)
		ic := out.AddVertex(c)
		out.AddTriangle(ia, ib, ic)
	}
	return out
}

// --- Mesh helper method tests ---

func TestMeshCounts(t *testing.T) {
	m := cube(t, 10)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())
	assert.False(t, m.IsEmpty())

	var nilMesh *mesh.Mesh
	assert.True(t, nilMesh.IsEmpty())
	assert.True(t, (&mesh.Mesh{}).IsEmpty())
}

func TestCloneIsIndependent(t *testing.T) {
	m := cube(t, 1)
	c := m.Clone()
	c.Vertices[0] = v3.Vec{X: 42}
	c.Triangles[0].V[0] = 7
	assert.NotEqual(t, m.Vertices[0], c.Vertices[0])
	assert.NotEqual(t, m.Triangles[0].V, c.Triangles[0].V)
}

func TestMergeOffsetsIndices(t *testing.T) {
	a := cube(t, 1)
	b := cube(t, 1)
	m := mesh.Merge(a, nil, b)
	require.Equal(t, 16, m.VertexCount())
	require.Equal(t, 24, m.TriangleCount())
	for _, tri := range m.Triangles[12:] {
		for _, i := range tri.V {
			assert.GreaterOrEqual(t, i, 8)
		}
	}
}

func TestBoundingBox(t *testing.T) {
	m := cube(t, 10)
	bb := m.BoundingBox()
	assert.Equal(t, v3.Vec{}, bb.Min)
	assert.Equal(t, v3.Vec{X: 10, Y: 10, Z: 10}, bb.Max)
	assert.Equal(t, sdf.Box3{}, (&mesh.Mesh{}).BoundingBox())
}

// --- Welding ---

func TestWeldMergesUnsharedCube(t *testing.T) {
	m := unshare(cube(t, 10))
	require.Equal(t, 36, m.VertexCount())

	merged := m.Weld(mesh.DefaultEpsilon)
	assert.Equal(t, 28, merged)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())
	assert.True(t, m.IsClosed())
}

func TestWeldUsesFirstRepresentative(t *testing.T) {
	eps := 1.0
	m := &mesh.Mesh{Vertices: []v3.Vec{{X: 0}, {X: 0.6}, {X: 1.2}, {X: 10}}}
	m.AddTriangle(0, 1, 3)
	m.AddTriangle(1, 2, 3)

	m.Weld(eps)
	// 0.6 collapses onto 0; 1.2 is more than eps from the surviving 0.
	require.Equal(t, 3, m.VertexCount())
	assert.Equal(t, v3.Vec{X: 0}, m.Vertices[0])
	assert.Equal(t, v3.Vec{X: 1.2}, m.Vertices[1])
	assert.Equal(t, [3]int{0, 0, 2}, m.Triangles[0].V)
	assert.Equal(t, [3]int{0, 1, 2}, m.Triangles[1].V)
}

func TestWeldIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, eps := range []float64{1e-6, 1e-3, 0.5, 2} {
		for trial := 0; trial < 20; trial++ {
			m := &mesh.Mesh{}
			for i := 0; i < 60; i++ {
				m.AddVertex(v3.Vec{
					X: math.Round(rng.Float64()*40) / 10,
					Y: math.Round(rng.Float64()*40) / 10,
					Z: rng.Float64() * 3 * eps,
				})
			}
			for i := 0; i+2 < 60; i += 3 {
				m.AddTriangle(i, i+1, i+2)
			}

			m.Weld(eps)
			once := m.Clone()
			merged := m.Weld(eps)

			assert.Zero(t, merged, "eps=%g trial=%d", eps, trial)
			assert.Equal(t, once, m, "eps=%g trial=%d", eps, trial)
		}
	}
}

func TestWeldDropsOrphans(t *testing.T) {
	m := &mesh.Mesh{Vertices: []v3.Vec{{X: 5}, {}, {X: 1}, {Y: 1}}}
	m.AddTriangle(1, 2, 3)
	m.Weld(mesh.DefaultEpsilon)
	assert.Equal(t, 3, m.VertexCount())
	assert.Equal(t, [3]int{0, 1, 2}, m.Triangles[0].V)
}

// --- Triangle deduplication ---

func TestRemoveDuplicateTriangles(t *testing.T) {
	m := &mesh.Mesh{Vertices: []v3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}}}
	m.AddTriangle(0, 1, 2)
	m.AddTriangle(1, 2, 0) // same cyclic order
	m.AddTriangle(2, 0, 1) // same cyclic order
	m.AddTriangle(0, 2, 1) // reversed winding, kept
	m.AddTriangle(0, 0, 3) // repeated index
	m.AddTriangle(0, 1, 9) // out of range
	m.AddTriangle(0, 1, 3)

	dups, degenerate := m.RemoveDuplicateTriangles()
	assert.Equal(t, 2, dups)
	assert.Equal(t, 2, degenerate)
	require.Equal(t, 3, m.TriangleCount())
	assert.Equal(t, [3]int{0, 1, 2}, m.Triangles[0].V)
	assert.Equal(t, [3]int{0, 2, 1}, m.Triangles[1].V)
	assert.Equal(t, [3]int{0, 1, 3}, m.Triangles[2].V)
}

func TestRemoveZeroAreaTriangles(t *testing.T) {
	m := &mesh.Mesh{Vertices: []v3.Vec{{}, {X: 1}, {X: 2}, {Y: 1}, {X: 1, Y: 1e-9}}}
	m.AddTriangle(0, 1, 3)
	m.AddTriangle(0, 1, 2) // collinear, distinct indices
	m.AddTriangle(0, 2, 4) // sliver far below eps²

	assert.Equal(t, 2, m.RemoveZeroAreaTriangles(1e-3))
	require.Equal(t, 1, m.TriangleCount())
	assert.Equal(t, [3]int{0, 1, 3}, m.Triangles[0].V)
}

func TestCleanupDropsZeroAreaTriangles(t *testing.T) {
	m := cube(t, 2)
	a := m.AddVertex(v3.Vec{})
	b := m.AddVertex(v3.Vec{X: 1})
	c := m.AddVertex(v3.Vec{X: 2})
	m.AddTriangle(a, b, c)

	st := m.Cleanup(mesh.DefaultEpsilon)
	assert.Equal(t, 1, st.DegenerateTriangles)
	assert.Equal(t, 12, m.TriangleCount())
	assert.True(t, m.IsClosed())
	for i := range m.Triangles {
		a, b, c := m.Corners(i)
		assert.Greater(t, mesh.Area(a, b, c), mesh.DefaultEpsilon*mesh.DefaultEpsilon)
	}
}

func TestSplitTJunctions(t *testing.T) {
	m := cube(t, 2)
	require.Equal(t, [3]int{1, 0, 3}, m.Triangles[2].V)

	// split one bottom triangle at the middle of the edge it shares with
	// the -y face, leaving that face's triangle with a vertex on its edge
	mid := m.AddVertex(v3.Vec{X: 1})
	m.Triangles[2].V = [3]int{1, mid, 3}
	m.AddTriangle(mid, 0, 3)
	require.False(t, m.IsClosed())

	assert.Equal(t, 1, m.SplitTJunctions(mesh.DefaultEpsilon))
	assert.True(t, m.IsClosed())
	assert.Equal(t, 14, m.TriangleCount())
	assert.InDelta(t, 8, mesh.Analyze(m).Volume, 1e-12)

	assert.Zero(t, m.SplitTJunctions(mesh.DefaultEpsilon))
	assert.Zero(t, cube(t, 2).SplitTJunctions(mesh.DefaultEpsilon))
}

func TestNoCyclicDuplicatesRemain(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := &mesh.Mesh{}
	for i := 0; i < 6; i++ {
		m.AddVertex(v3.Vec{X: float64(i), Y: float64(i * i)})
	}
	for i := 0; i < 300; i++ {
		m.AddTriangle(rng.Intn(6), rng.Intn(6), rng.Intn(6))
	}
	m.RemoveDuplicateTriangles()

	seen := map[[3]int]bool{}
	for _, tri := range m.Triangles {
		v := tri.V
		for r := 0; r < 3; r++ {
			rot := [3]int{v[r], v[(r+1)%3], v[(r+2)%3]}
			assert.False(t, seen[rot], "duplicate %v", v)
		}
		seen[v] = true
	}
}

func TestCleanupOrder(t *testing.T) {
	// Two copies of the same cube: welding makes the second copy's
	// triangles exact duplicates, which deduplication then removes.
	m := mesh.Merge(cube(t, 2), cube(t, 2))
	st := m.Cleanup(mesh.DefaultEpsilon)
	assert.Equal(t, 8, st.WeldedVertices)
	assert.Equal(t, 12, st.DuplicateTriangles)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())
	assert.True(t, m.IsClosed())
}

// --- Transform ---

func TestTransformTranslate(t *testing.T) {
	m := cube(t, 1).Transform(sdf.Translate3d(v3.Vec{X: 5, Y: 6, Z: 7}))
	bb := m.BoundingBox()
	assert.InDelta(t, 5, bb.Min.X, 1e-12)
	assert.InDelta(t, 8, bb.Max.Z, 1e-12)
}

func TestTransformMirrorKeepsOutwardNormals(t *testing.T) {
	src := cube(t, 2)
	mirrored := src.Transform(sdf.Scale3d(v3.Vec{X: -1, Y: 1, Z: 1}))
	assert.Less(t, mesh.Determinant(sdf.Scale3d(v3.Vec{X: -1, Y: 1, Z: 1})), 0.0)
	assert.InDelta(t, 8, mesh.Analyze(mirrored).Volume, 1e-9)
	// source is untouched
	assert.Equal(t, cube(t, 2), src)
}

func TestReversedNegatesVolume(t *testing.T) {
	m := cube(t, 3)
	assert.InDelta(t, -27, mesh.Analyze(m.Reversed()).Volume, 1e-9)
}

// --- Validation and analytics ---

func TestEdgeQueries(t *testing.T) {
	m := cube(t, 1)
	assert.True(t, m.IsManifold())
	assert.True(t, m.IsClosed())
	assert.Zero(t, m.NonManifoldEdges())
	assert.Empty(t, m.BoundaryEdges())

	m.Triangles = m.Triangles[1:]
	assert.False(t, m.IsClosed())
	assert.True(t, m.IsManifold())
	assert.Len(t, m.BoundaryEdges(), 3)
	assert.Equal(t, 3, m.NonManifoldEdges())
}

func TestAnalyzeCube(t *testing.T) {
	st := mesh.Analyze(cube(t, 10))
	assert.InDelta(t, 1000, st.Volume, 1e-9)
	assert.InDelta(t, 600, st.SurfaceArea, 1e-9)
	assert.InDelta(t, 5, st.Centroid.X, 1e-9)
	assert.InDelta(t, 5, st.Centroid.Y, 1e-9)
	assert.InDelta(t, 5, st.Centroid.Z, 1e-9)
	assert.True(t, st.Watertight)
	assert.Equal(t, 8, st.VertexCount)
	assert.Equal(t, 12, st.TriangleCount)

	assert.Equal(t, mesh.Stats{}, mesh.Analyze(&mesh.Mesh{}))
}

func TestFlatten(t *testing.T) {
	f := cube(t, 1).Flatten()
	assert.Len(t, f.Vertices, 36*3)
	assert.Len(t, f.Normals, 36*3)
	assert.Len(t, f.Indices, 36)
}

func TestFaceNormalDegenerate(t *testing.T) {
	n := mesh.FaceNormal(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{X: 2})
	assert.Equal(t, v3.Vec{}, n)
	n = mesh.FaceNormal(v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1})
	assert.Equal(t, v3.Vec{Z: 1}, n)
}
