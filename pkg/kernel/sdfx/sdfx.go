// Package sdfx builds a signed-distance model of a scene graph with the
// github.com/deadsy/sdfx library. The model is an independent reference
// for the polygonal evaluator: it answers point-membership queries
// exactly, and its marching-cubes mesh gives a second opinion on bounds.
package sdfx

import (
	"errors"
	"fmt"

	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/graph"
	"github.com/chazu/kerf/pkg/mesh"
	"github.com/chazu/kerf/pkg/primitive"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultMeshCells controls marching cubes resolution along the longest
// axis of the model.
const DefaultMeshCells = 200

// ErrUnsupported is returned for node data the model cannot express.
var ErrUnsupported = errors.New("sdfx: unsupported node")

// Model is the SDF of a scene. A Model built from an empty scene has no
// surface: nothing is inside it and its bounds are empty.
type Model struct {
	s sdf.SDF3
}

// Build converts the tree under root into a Model.
func Build(root *graph.Node) (*Model, error) {
	if root == nil {
		return nil, errors.New("sdfx: nil root")
	}
	s, err := build(root)
	if err != nil {
		return nil, err
	}
	return &Model{s: s}, nil
}

// build returns nil for subtrees without volume (empty groups).
func build(n *graph.Node) (sdf.SDF3, error) {
	switch d := n.Data.(type) {
	case graph.PrimitiveData:
		s, err := shape(d.Shape)
		if err != nil {
			return nil, fmt.Errorf("sdfx: %s: %w", n.Label(), err)
		}
		return s, nil

	case graph.TransformData:
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("sdfx: %s: transform needs exactly one child", n.Label())
		}
		child, err := build(n.Children[0])
		if err != nil || child == nil {
			return nil, err
		}
		return sdf.Transform3D(child, d.Matrix), nil

	case graph.BooleanData:
		kids, err := children(n)
		if err != nil {
			return nil, err
		}
		if len(kids) == 0 {
			return nil, fmt.Errorf("sdfx: %s: no operands", n.Label())
		}
		return combine(d.Op, kids), nil

	case graph.GroupData:
		kids, err := children(n)
		if err != nil {
			return nil, err
		}
		return union(kids), nil

	default:
		return nil, fmt.Errorf("%w: %s (%T)", ErrUnsupported, n.Label(), n.Data)
	}
}

func children(n *graph.Node) ([]sdf.SDF3, error) {
	out := make([]sdf.SDF3, 0, len(n.Children))
	for _, c := range n.Children {
		if c == nil {
			return nil, fmt.Errorf("sdfx: %s: nil child", n.Label())
		}
		s, err := build(c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// combine folds operands the same way the mesh evaluator does; nil
// operands stand for empty solids.
func combine(op csg.Op, kids []sdf.SDF3) sdf.SDF3 {
	switch op {
	case csg.Difference:
		if kids[0] == nil {
			return nil
		}
		rest := union(kids[1:])
		if rest == nil {
			return kids[0]
		}
		return sdf.Difference3D(kids[0], rest)
	case csg.Intersection:
		acc := kids[0]
		for _, k := range kids[1:] {
			if acc == nil || k == nil {
				return nil
			}
			acc = sdf.Intersect3D(acc, k)
		}
		return acc
	default:
		return union(kids)
	}
}

func union(kids []sdf.SDF3) sdf.SDF3 {
	var live []sdf.SDF3
	for _, k := range kids {
		if k != nil {
			live = append(live, k)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return sdf.Union3D(live...)
}

// shape maps a primitive onto the equivalent sdfx solid. sdfx centers
// its boxes and cylinders on the origin, so uncentered shapes are moved
// to the placement the mesh generators use.
func shape(s primitive.Shape) (sdf.SDF3, error) {
	switch p := s.(type) {
	case primitive.Cube:
		box, err := sdf.Box3D(p.Size, 0)
		if err != nil {
			return nil, err
		}
		if p.Center {
			return box, nil
		}
		return sdf.Transform3D(box, sdf.Translate3d(p.Size.MulScalar(0.5))), nil

	case primitive.Sphere:
		return sdf.Sphere3D(p.Radius)

	case primitive.Cylinder:
		var (
			c   sdf.SDF3
			err error
		)
		if p.R1 == p.R2 {
			c, err = sdf.Cylinder3D(p.Height, p.R1, 0)
		} else {
			c, err = sdf.Cone3D(p.Height, p.R1, p.R2, 0)
		}
		if err != nil {
			return nil, err
		}
		if p.Center {
			return c, nil
		}
		return sdf.Transform3D(c, sdf.Translate3d(v3.Vec{Z: p.Height / 2})), nil

	case nil:
		return nil, primitive.ErrInvalidParameter
	default:
		return nil, fmt.Errorf("%w: shape %q", ErrUnsupported, s.Name())
	}
}

// IsEmpty reports whether the model has no volume.
func (m *Model) IsEmpty() bool { return m.s == nil }

// SDF returns the underlying sdfx solid, or nil for an empty model.
func (m *Model) SDF() sdf.SDF3 { return m.s }

// Distance returns the signed distance estimate at p, negative inside.
// Non-uniform scales make it a bound rather than an exact distance, but
// the sign is always right.
func (m *Model) Distance(p v3.Vec) float64 {
	if m.s == nil {
		return 1
	}
	return m.s.Evaluate(p)
}

// Inside reports whether p lies strictly inside the solid.
func (m *Model) Inside(p v3.Vec) bool { return m.Distance(p) < 0 }

// Bounds returns the model's bounding box.
func (m *Model) Bounds() sdf.Box3 {
	if m.s == nil {
		return sdf.Box3{}
	}
	return m.s.BoundingBox()
}

// ReferenceMesh tessellates the model with marching cubes and welds the
// per-triangle vertices. cells <= 0 selects DefaultMeshCells.
func ReferenceMesh(m *Model, cells int) (*mesh.Mesh, error) {
	if m == nil || m.s == nil {
		return &mesh.Mesh{}, nil
	}
	if cells <= 0 {
		cells = DefaultMeshCells
	}
	tris := render.ToTriangles(m.s, render.NewMarchingCubesUniform(cells))
	out := mesh.New(len(tris)*3, len(tris))
	for _, tri := range tris {
		a := out.AddVertex(tri[0])
		b := out.AddVertex(tri[1])
		c := out.AddVertex(tri[2])
		out.AddTriangle(a, b, c)
	}
	out.Cleanup(mesh.DefaultEpsilon)
	return out, nil
}
