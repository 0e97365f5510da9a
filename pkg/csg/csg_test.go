package csg_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/mesh"
	"github.com/chazu/kerf/pkg/primitive"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeAt(t *testing.T, side float64, at v3.Vec) *mesh.Mesh {
	t.Helper()
	m, err := primitive.Cube{Size: v3.Vec{X: side, Y: side, Z: side}}.Generate()
	require.NoError(t, err)
	return m.Transform(sdf.Translate3d(at))
}

func sphere(t *testing.T, r float64, segments int) *mesh.Mesh {
	t.Helper()
	m, err := primitive.Sphere{Radius: r, Segments: segments}.Generate()
	require.NoError(t, err)
	return m
}

func combine(t *testing.T, op csg.Op, a, b *mesh.Mesh) (*mesh.Mesh, csg.Diagnostics) {
	t.Helper()
	out, diag, err := csg.Combine(context.Background(), op, a, b)
	require.NoError(t, err)
	require.NotNil(t, out)
	return out, diag
}

func volume(m *mesh.Mesh) float64 { return mesh.Analyze(m).Volume }

func assertBox(t *testing.T, m *mesh.Mesh, lo, hi v3.Vec) {
	t.Helper()
	bb := m.BoundingBox()
	assert.InDelta(t, lo.X, bb.Min.X, 1e-9)
	assert.InDelta(t, lo.Y, bb.Min.Y, 1e-9)
	assert.InDelta(t, lo.Z, bb.Min.Z, 1e-9)
	assert.InDelta(t, hi.X, bb.Max.X, 1e-9)
	assert.InDelta(t, hi.Y, bb.Max.Y, 1e-9)
	assert.InDelta(t, hi.Z, bb.Max.Z, 1e-9)
}

// --- Operators ---

func TestOpString(t *testing.T) {
	for _, op := range []csg.Op{csg.Union, csg.Difference, csg.Intersection} {
		parsed, err := csg.ParseOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}
	_, err := csg.ParseOp("xor")
	assert.Error(t, err)

	_, _, err = csg.Combine(context.Background(), csg.Op(9), &mesh.Mesh{}, &mesh.Mesh{})
	assert.Error(t, err)
}

// --- Self combinations ---

func TestSelfCombinations(t *testing.T) {
	inputs := map[string]*mesh.Mesh{
		"cube":   cubeAt(t, 10, v3.Vec{}),
		"sphere": sphere(t, 5, 12),
	}
	for name, m := range inputs {
		t.Run(name, func(t *testing.T) {
			u, _ := combine(t, csg.Union, m, m)
			assert.Equal(t, m.VertexCount(), u.VertexCount(), "union vertices")
			assert.Equal(t, m.TriangleCount(), u.TriangleCount(), "union triangles")
			assert.InDelta(t, volume(m), volume(u), 1e-9)

			i, _ := combine(t, csg.Intersection, m, m)
			assert.Equal(t, m.TriangleCount(), i.TriangleCount(), "intersection triangles")

			d, _ := combine(t, csg.Difference, m, m)
			assert.Zero(t, d.TriangleCount(), "difference must be empty")
			assert.Zero(t, d.VertexCount())
		})
	}
}

// --- Disjoint and nested operands ---

func TestDisjointCubes(t *testing.T) {
	a := cubeAt(t, 1, v3.Vec{})
	b := cubeAt(t, 1, v3.Vec{X: 3})

	u, diag := combine(t, csg.Union, a, b)
	assert.Equal(t, 24, u.TriangleCount())
	assert.Equal(t, 16, u.VertexCount())
	assert.Zero(t, diag.SplitTriangles)
	assert.True(t, diag.Clean())

	d, _ := combine(t, csg.Difference, a, b)
	assert.Equal(t, a, d)

	i, _ := combine(t, csg.Intersection, a, b)
	assert.True(t, i.IsEmpty())
}

func TestContainedCube(t *testing.T) {
	outer := cubeAt(t, 20, v3.Vec{})
	inner := cubeAt(t, 10, v3.Vec{X: 5, Y: 5, Z: 5})

	u, _ := combine(t, csg.Union, outer, inner)
	assert.Equal(t, 12, u.TriangleCount())
	assert.Equal(t, 8, u.VertexCount())
	assertBox(t, u, v3.Vec{}, v3.Vec{X: 20, Y: 20, Z: 20})

	d, _ := combine(t, csg.Difference, outer, inner)
	assert.Equal(t, 24, d.TriangleCount())
	assert.InDelta(t, 7000, volume(d), 1e-9)
	assert.True(t, d.IsClosed())

	i, _ := combine(t, csg.Intersection, outer, inner)
	assert.Equal(t, 12, i.TriangleCount())
	assert.InDelta(t, 1000, volume(i), 1e-9)

	// inner − outer removes everything
	empty, _ := combine(t, csg.Difference, inner, outer)
	assert.True(t, empty.IsEmpty())
}

// --- Overlapping operands ---

func TestOverlappingCubes(t *testing.T) {
	a := cubeAt(t, 10, v3.Vec{})
	b := cubeAt(t, 10, v3.Vec{X: 5})

	tests := []struct {
		op     csg.Op
		volume float64
		lo, hi v3.Vec
	}{
		{csg.Union, 1500, v3.Vec{}, v3.Vec{X: 15, Y: 10, Z: 10}},
		{csg.Difference, 500, v3.Vec{}, v3.Vec{X: 5, Y: 10, Z: 10}},
		{csg.Intersection, 500, v3.Vec{X: 5}, v3.Vec{X: 10, Y: 10, Z: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			out, diag := combine(t, tt.op, a, b)
			assert.InDelta(t, tt.volume, volume(out), 1e-6)
			assertBox(t, out, tt.lo, tt.hi)
			assert.Positive(t, diag.CandidatePairs)
			assert.Positive(t, diag.SplitTriangles)

			// the result is welded and free of cyclic duplicates
			again := out.Clone()
			assert.Zero(t, again.Weld(mesh.DefaultEpsilon))
			dups, degenerate := again.RemoveDuplicateTriangles()
			assert.Zero(t, dups)
			assert.Zero(t, degenerate)
			assert.True(t, out.IsClosed())
			assert.Zero(t, diag.NonManifoldEdges)
		})
	}
}

func TestOverlappingCubesWeldCounts(t *testing.T) {
	a := cubeAt(t, 10, v3.Vec{})
	b := cubeAt(t, 10, v3.Vec{X: 5})

	u, _ := combine(t, csg.Union, a, b)
	assert.Equal(t, 46, u.TriangleCount())
	assert.Equal(t, 25, u.VertexCount())
	assert.True(t, u.IsClosed())

	// one vertex per triangle corner before welding
	raw := mesh.New(3*u.TriangleCount(), u.TriangleCount())
	for i := range u.Triangles {
		p, q, r := u.Corners(i)
		raw.AddTriangle(raw.AddVertex(p), raw.AddVertex(q), raw.AddVertex(r))
	}
	require.Equal(t, 138, raw.VertexCount())
	assert.Equal(t, 113, raw.Weld(mesh.DefaultEpsilon))
	assert.Equal(t, 25, raw.VertexCount())
}

func TestOverlapsAreWatertight(t *testing.T) {
	box, err := primitive.Cube{Size: v3.Vec{X: 10, Y: 10, Z: 10}, Center: true}.Generate()
	require.NoError(t, err)
	cone, err := primitive.Cylinder{Height: 14, R1: 5, R2: 1, Segments: 24, Center: true}.Generate()
	require.NoError(t, err)

	// The cone's sections at z = ±5 are regular 24-gons of radius 31/7
	// and 11/7, so box ∩ cone is a frustum.
	section := func(r float64) float64 { return 0.5 * 24 * r * r * math.Sin(2*math.Pi/24) }
	lo, hi := section(31.0/7), section(11.0/7)
	frustum := 10.0 / 3 * (lo + hi + math.Sqrt(lo*hi))

	tests := []struct {
		name   string
		a, b   *mesh.Mesh
		common float64 // volume of a ∩ b, 0 if not known in closed form
	}{
		{"corner offset cubes", cubeAt(t, 10, v3.Vec{}), cubeAt(t, 10, v3.Vec{X: 5, Y: 5, Z: 5}), 125},
		{"cube and sphere", box, sphere(t, 6, 16), 0},
		{"cube and cone", box, cone, frustum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			va, vb := volume(tt.a), volume(tt.b)
			vol := make(map[csg.Op]float64)
			for _, op := range []csg.Op{csg.Union, csg.Difference, csg.Intersection} {
				out, diag := combine(t, op, tt.a, tt.b)
				assert.True(t, out.IsClosed(), "%v is not closed", op)
				assert.Zero(t, out.NonManifoldEdges(), op.String())
				assert.Zero(t, diag.NonManifoldEdges, op.String())
				vol[op] = volume(out)
			}
			common := vol[csg.Intersection]
			if tt.common > 0 {
				assert.InDelta(t, tt.common, common, 1e-6)
			}
			assert.InDelta(t, va+vb-common, vol[csg.Union], 1e-6)
			assert.InDelta(t, va-common, vol[csg.Difference], 1e-6)
		})
	}
}

func TestCubeMinusCylinder(t *testing.T) {
	box, err := primitive.Cube{Size: v3.Vec{X: 10, Y: 10, Z: 10}, Center: true}.Generate()
	require.NoError(t, err)
	const n = 16
	drill, err := primitive.Cylinder{Height: 20, R1: 2, R2: 2, Segments: n, Center: true}.Generate()
	require.NoError(t, err)

	out, _ := combine(t, csg.Difference, box, drill)
	// the drilled prism has the cross-section of a regular 16-gon
	section := 0.5 * n * 4 * math.Sin(2*math.Pi/n)
	assert.InDelta(t, 1000-10*section, volume(out), 1e-6)
	assertBox(t, out, v3.Vec{X: -5, Y: -5, Z: -5}, v3.Vec{X: 5, Y: 5, Z: 5})

	label, err := csg.Classify(out, v3.Vec{}, mesh.DefaultEpsilon)
	require.NoError(t, err)
	assert.Equal(t, csg.Outside, label, "the axis lies in the drilled hole")

	label, err = csg.Classify(out, v3.Vec{X: 4, Y: 4}, mesh.DefaultEpsilon)
	require.NoError(t, err)
	assert.Equal(t, csg.Inside, label)
}

func TestTouchingCubes(t *testing.T) {
	a := cubeAt(t, 10, v3.Vec{})
	b := cubeAt(t, 10, v3.Vec{X: 10})

	// the shared face lies between the solids and is dropped from both
	u, diag := combine(t, csg.Union, a, b)
	assert.InDelta(t, 2000, volume(u), 1e-9)
	assert.Equal(t, 20, u.TriangleCount())
	assert.True(t, u.IsClosed())
	assert.Zero(t, diag.NonManifoldEdges)
	assertBox(t, u, v3.Vec{}, v3.Vec{X: 20, Y: 10, Z: 10})

	d, _ := combine(t, csg.Difference, a, b)
	assert.InDelta(t, 1000, volume(d), 1e-9)
	assert.Equal(t, 14, d.TriangleCount())
	assert.True(t, d.IsClosed())

	i, _ := combine(t, csg.Intersection, a, b)
	assert.True(t, i.IsEmpty())
}

func TestDeterministic(t *testing.T) {
	a := sphere(t, 5, 10)
	b := cubeAt(t, 6, v3.Vec{X: 1, Y: 1, Z: 1})
	first, d1 := combine(t, csg.Difference, a, b)
	second, d2 := combine(t, csg.Difference, a, b)
	assert.Equal(t, first, second)
	assert.Equal(t, d1, d2)
}

func TestInputsAreNotModified(t *testing.T) {
	a := cubeAt(t, 10, v3.Vec{})
	b := cubeAt(t, 10, v3.Vec{X: 5, Y: 5})
	ac, bc := a.Clone(), b.Clone()
	combine(t, csg.Union, a, b)
	assert.Equal(t, ac, a)
	assert.Equal(t, bc, b)
}

func TestEmptyOperands(t *testing.T) {
	a := cubeAt(t, 2, v3.Vec{})
	empty := &mesh.Mesh{}

	u, _ := combine(t, csg.Union, empty, a)
	assert.Equal(t, 12, u.TriangleCount())
	d, _ := combine(t, csg.Difference, a, empty)
	assert.Equal(t, 12, d.TriangleCount())
	d, _ = combine(t, csg.Difference, empty, a)
	assert.True(t, d.IsEmpty())
	i, _ := combine(t, csg.Intersection, a, nil)
	assert.True(t, i.IsEmpty())
}

// --- Cancellation ---

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, _, err := csg.Combine(ctx, csg.Union, sphere(t, 5, 16), sphere(t, 4, 16))
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, csg.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
}

// --- Classification ---

func TestClassify(t *testing.T) {
	m := cubeAt(t, 10, v3.Vec{})
	tests := []struct {
		name string
		p    v3.Vec
		want csg.Label
	}{
		{"center", v3.Vec{X: 5, Y: 5, Z: 5}, csg.Inside},
		{"near face", v3.Vec{X: 9.999, Y: 5, Z: 5}, csg.Inside},
		{"on face", v3.Vec{X: 10, Y: 5, Z: 5}, csg.OnBoundary},
		{"within band", v3.Vec{X: 10 + 5e-7, Y: 5, Z: 5}, csg.OnBoundary},
		{"on edge", v3.Vec{X: 10, Y: 10, Z: 5}, csg.OnBoundary},
		{"outside", v3.Vec{X: 10.001, Y: 5, Z: 5}, csg.Outside},
		{"far away", v3.Vec{X: -50, Y: 5, Z: 5}, csg.Outside},
		{"face plane outside face", v3.Vec{X: 10, Y: 15, Z: 5}, csg.Outside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := csg.Classify(m, tt.p, mesh.DefaultEpsilon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "Classify(%v) = %v, want %v", tt.p, got, tt.want)
		})
	}
}

func TestWindingNumber(t *testing.T) {
	m := sphere(t, 3, 16)
	assert.InDelta(t, 1, csg.WindingNumber(m, v3.Vec{}), 1e-9)
	assert.InDelta(t, 0, csg.WindingNumber(m, v3.Vec{X: 10}), 1e-9)
	assert.InDelta(t, -1, csg.WindingNumber(m.Reversed(), v3.Vec{}), 1e-9)
}

func TestDiagnosticsAdd(t *testing.T) {
	var d csg.Diagnostics
	d.Add(csg.Diagnostics{CandidatePairs: 2, SkippedPairs: 1})
	d.Add(csg.Diagnostics{CandidatePairs: 3, DegenerateTriangles: 4})
	assert.Equal(t, csg.Diagnostics{CandidatePairs: 5, SkippedPairs: 1, DegenerateTriangles: 4}, d)
	assert.False(t, d.Clean())
	assert.True(t, csg.Diagnostics{CandidatePairs: 1}.Clean())
}
