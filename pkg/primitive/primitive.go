// Package primitive generates closed, outward-facing triangle meshes for
// the parametric solids of the scene graph: cubes, spheres, and
// cylinders (including truncated cones).
package primitive

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultSegments is the angular subdivision used when a curved shape
// does not set one.
const DefaultSegments = 32

// ErrInvalidParameter is returned (wrapped in a *ParamError) when a
// dimension, radius or segment count is out of range.
var ErrInvalidParameter = errors.New("invalid parameter")

// ParamError names the shape and parameter that failed validation.
type ParamError struct {
	Shape string
	Param string
	Value float64
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s = %g: %v", e.Shape, e.Param, e.Value, ErrInvalidParameter)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

// Shape is a parametric solid that can be tessellated.
type Shape interface {
	// Name returns the shape kind ("cube", "sphere", "cylinder").
	Name() string
	// Generate tessellates the shape into a new mesh.
	Generate() (*mesh.Mesh, error)
}

// Generate tessellates s. It is the single entry point the evaluator uses.
func Generate(s Shape) (*mesh.Mesh, error) {
	if s == nil {
		return nil, fmt.Errorf("primitive: nil shape: %w", ErrInvalidParameter)
	}
	return s.Generate()
}

func positive(shape, param string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return &ParamError{Shape: shape, Param: param, Value: v}
	}
	return nil
}

func segments(shape string, n int) (int, error) {
	if n == 0 {
		return DefaultSegments, nil
	}
	if n < 3 {
		return 0, &ParamError{Shape: shape, Param: "segments", Value: float64(n)}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Cube
// ---------------------------------------------------------------------------

// Cube is an axis-aligned box. Without Center its minimum corner sits at
// the origin.
type Cube struct {
	Size   v3.Vec
	Center bool
}

// Name returns "cube".
func (Cube) Name() string { return "cube" }

// cubeFaces lists the 12 triangles over the corner numbering
// 0=(0,0,0) 1=(x,0,0) 2=(x,y,0) 3=(0,y,0) and 4..7 the same at z.
var cubeFaces = [12][3]int{
	{4, 5, 6}, {4, 6, 7}, // top
	{1, 0, 3}, {1, 3, 2}, // bottom
	{5, 1, 2}, {5, 2, 6}, // +x
	{0, 4, 7}, {0, 7, 3}, // -x
	{7, 6, 2}, {7, 2, 3}, // +y
	{0, 1, 5}, {0, 5, 4}, // -y
}

// Generate returns the 8-vertex, 12-triangle box.
func (c Cube) Generate() (*mesh.Mesh, error) {
	for _, p := range []struct {
		name string
		v    float64
	}{{"size.x", c.Size.X}, {"size.y", c.Size.Y}, {"size.z", c.Size.Z}} {
		if err := positive("cube", p.name, p.v); err != nil {
			return nil, err
		}
	}
	var lo v3.Vec
	if c.Center {
		lo = c.Size.MulScalar(-0.5)
	}
	hi := lo.Add(c.Size)

	m := mesh.New(8, 12)
	for _, z := range []float64{lo.Z, hi.Z} {
		m.AddVertex(v3.Vec{X: lo.X, Y: lo.Y, Z: z})
		m.AddVertex(v3.Vec{X: hi.X, Y: lo.Y, Z: z})
		m.AddVertex(v3.Vec{X: hi.X, Y: hi.Y, Z: z})
		m.AddVertex(v3.Vec{X: lo.X, Y: hi.Y, Z: z})
	}
	for _, f := range cubeFaces {
		m.AddTriangle(f[0], f[1], f[2])
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Sphere
// ---------------------------------------------------------------------------

// Sphere is centered on the origin. Segments is the number of vertices
// around each latitude ring; there are (Segments+1)/2 rings.
type Sphere struct {
	Radius   float64
	Segments int
}

// Name returns "sphere".
func (Sphere) Name() string { return "sphere" }

// Generate builds latitude rings offset half a step from the poles, so
// the mesh has no pole vertices and no seam duplicates. The first and
// last rings are closed with fans.
func (s Sphere) Generate() (*mesh.Mesh, error) {
	if err := positive("sphere", "radius", s.Radius); err != nil {
		return nil, err
	}
	n, err := segments("sphere", s.Segments)
	if err != nil {
		return nil, err
	}
	rings := (n + 1) / 2

	m := mesh.New(rings*n, 2*n*rings)
	for i := 0; i < rings; i++ {
		phi := math.Pi * (float64(i) + 0.5) / float64(rings)
		r := s.Radius * math.Sin(phi)
		z := s.Radius * math.Cos(phi)
		for j := 0; j < n; j++ {
			theta := 2 * math.Pi * float64(j) / float64(n)
			m.AddVertex(v3.Vec{X: r * math.Cos(theta), Y: r * math.Sin(theta), Z: z})
		}
	}

	ring := func(i, j int) int { return i*n + (j % n) }

	// top cap, seen from +z the ring runs counter-clockwise
	for j := 1; j < n-1; j++ {
		m.AddTriangle(ring(0, 0), ring(0, j), ring(0, j+1))
	}
	for i := 0; i+1 < rings; i++ {
		for j := 0; j < n; j++ {
			a, b := ring(i, j), ring(i, j+1)
			c, d := ring(i+1, j), ring(i+1, j+1)
			m.AddTriangle(a, c, d)
			m.AddTriangle(a, d, b)
		}
	}
	// bottom cap, reversed
	last := rings - 1
	for j := 1; j < n-1; j++ {
		m.AddTriangle(ring(last, 0), ring(last, j+1), ring(last, j))
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Cylinder
// ---------------------------------------------------------------------------

// Cylinder is a z-aligned cylinder or truncated cone with radius R1 at
// the bottom and R2 at the top. Without Center it spans z in [0, Height].
type Cylinder struct {
	Height   float64
	R1, R2   float64
	Segments int
	Center   bool
}

// Name returns "cylinder".
func (Cylinder) Name() string { return "cylinder" }

// Generate builds two rings of Segments vertices. Every side quad is
// split along the diagonal from bottom[j] to top[j+1]; caps are fanned
// from the first ring vertex.
func (c Cylinder) Generate() (*mesh.Mesh, error) {
	if err := positive("cylinder", "height", c.Height); err != nil {
		return nil, err
	}
	if err := positive("cylinder", "r1", c.R1); err != nil {
		return nil, err
	}
	if err := positive("cylinder", "r2", c.R2); err != nil {
		return nil, err
	}
	n, err := segments("cylinder", c.Segments)
	if err != nil {
		return nil, err
	}

	z0, z1 := 0.0, c.Height
	if c.Center {
		z0, z1 = -c.Height/2, c.Height/2
	}

	m := mesh.New(2*n, 4*n-4)
	for _, ring := range []struct{ r, z float64 }{{c.R1, z0}, {c.R2, z1}} {
		for j := 0; j < n; j++ {
			theta := 2 * math.Pi * float64(j) / float64(n)
			m.AddVertex(v3.Vec{X: ring.r * math.Cos(theta), Y: ring.r * math.Sin(theta), Z: ring.z})
		}
	}

	bottom := func(j int) int { return j % n }
	top := func(j int) int { return n + j%n }

	for j := 1; j < n-1; j++ {
		m.AddTriangle(bottom(0), bottom(j+1), bottom(j))
	}
	for j := 0; j < n; j++ {
		m.AddTriangle(bottom(j), bottom(j+1), top(j+1))
		m.AddTriangle(bottom(j), top(j+1), top(j))
	}
	for j := 1; j < n-1; j++ {
		m.AddTriangle(top(0), top(j), top(j+1))
	}
	return m, nil
}
